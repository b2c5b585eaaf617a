package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/client/store"
	"github.com/safetrack/fieldsign/internal/common"
)

func (a *App) cmdNewRequest(ctx context.Context) error {
	kind, err := GetSimpleText(a.in, "Kind (daily_talk, ppe_delivery, procedure_ack):", a.out)
	if err != nil {
		return err
	}
	title, err := GetSimpleText(a.in, "Title:", a.out)
	if err != nil {
		return err
	}
	description, err := GetSimpleText(a.in, "Description (optional):", a.out)
	if err != nil {
		return err
	}
	location, err := GetSimpleText(a.in, "Location (optional):", a.out)
	if err != nil {
		return err
	}
	requesterID, err := GetSimpleText(a.in, "Your RUT:", a.out)
	if err != nil {
		return err
	}
	requesterName, err := GetSimpleText(a.in, "Your name:", a.out)
	if err != nil {
		return err
	}

	req, err := a.store.CreateRequest(ctx, models.RequestDraft{
		Kind:          kind,
		Title:         title,
		Description:   description,
		Location:      location,
		RequesterID:   requesterID,
		RequesterName: requesterName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created request %s\n", req.ID)
	return nil
}

func (a *App) cmdSign(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sign <request-id>")
	}
	subjectID, err := GetSimpleText(a.in, "Worker RUT:", a.out)
	if err != nil {
		return err
	}

	displayName := ""
	if w, err := a.store.GetCachedWorker(ctx, subjectID); err == nil {
		displayName = w.FullName
		fmt.Fprintf(a.out, "signing as %s\n", w.FullName)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if displayName == "" {
		displayName, err = GetSimpleText(a.in, "Worker name:", a.out)
		if err != nil {
			return err
		}
	}

	pin, err := GetPIN(a.out)
	if err != nil {
		return err
	}
	defer store.WipeCredential(pin)

	sig, err := a.store.AppendSignature(ctx, args[0], models.SignatureDraft{
		SubjectID:   subjectID,
		Credential:  string(pin),
		DisplayName: displayName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "captured signature %s for %s\n", sig.ID, sig.SubjectID)
	return nil
}

func (a *App) cmdUnsign(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: unsign <request-id> <signature-id>")
	}
	if err := a.store.RemoveSignature(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signature removed")
	return nil
}

func (a *App) cmdList(ctx context.Context) error {
	reqs, err := a.store.ListRequests(ctx)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Fprintln(a.out, "no requests")
		return nil
	}
	for _, r := range reqs {
		fmt.Fprintf(a.out, "%s  %-8s  %-10s  %d signature(s)  %s\n",
			r.ID, r.SyncStatus, r.Kind, len(r.Signatures), r.Title)
	}
	return nil
}

func (a *App) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show <request-id>")
	}
	r, err := a.store.GetRequest(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "id:        %s\n", r.ID)
	fmt.Fprintf(a.out, "kind:      %s\n", r.Kind)
	fmt.Fprintf(a.out, "title:     %s\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(a.out, "desc:      %s\n", r.Description)
	}
	if r.Location != "" {
		fmt.Fprintf(a.out, "location:  %s\n", r.Location)
	}
	fmt.Fprintf(a.out, "requester: %s (%s)\n", r.RequesterName, r.RequesterID)
	fmt.Fprintf(a.out, "created:   %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "status:    %s\n", r.SyncStatus)
	if r.SyncError != "" {
		fmt.Fprintf(a.out, "sync err:  %s\n", r.SyncError)
	}
	if r.RemoteRequestID != "" {
		fmt.Fprintf(a.out, "remote id: %s\n", r.RemoteRequestID)
	}
	fmt.Fprintf(a.out, "signatures (%d):\n", len(r.Signatures))
	for _, s := range r.Signatures {
		mark := " "
		if s.Validated {
			mark = "v"
		}
		fmt.Fprintf(a.out, "  [%s] %s  %s  %s  %s\n",
			mark, s.ID, s.SubjectID, s.DisplayName, s.CapturedAt.Format("15:04:05"))
	}
	return nil
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <request-id>")
	}
	confirm, err := GetSimpleText(a.in, "Delete request and its signatures? (y/N):", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "y") {
		fmt.Fprintln(a.out, "cancelled")
		return nil
	}
	if err := a.store.DeleteRequest(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted")
	return nil
}

func (a *App) cmdSync(ctx context.Context) error {
	if !a.monitor.Check(ctx) {
		return common.ErrorOffline
	}
	results := a.engine.SyncAll(ctx)
	if results == nil {
		fmt.Fprintln(a.out, "nothing to sync")
		return nil
	}
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(a.out, "%s  synced as %s (%d/%d valid)\n",
				r.RequestID, r.RemoteRequestID, r.ValidCount, r.SignatureCount)
		} else {
			fmt.Fprintf(a.out, "%s  failed: %s\n", r.RequestID, r.Message)
		}
	}
	return nil
}

func (a *App) cmdRetry(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: retry <request-id>")
	}
	if a.engine.IsSyncing() {
		return common.ErrorSyncInProgress
	}
	if !a.monitor.Check(ctx) {
		return common.ErrorOffline
	}
	r := a.engine.SyncOne(ctx, args[0])
	if !r.Success {
		return fmt.Errorf("sync failed: %s", r.Message)
	}
	fmt.Fprintf(a.out, "%s  synced as %s (%d/%d valid)\n",
		r.RequestID, r.RemoteRequestID, r.ValidCount, r.SignatureCount)
	return nil
}

func (a *App) cmdLog(ctx context.Context, args []string) error {
	requestID := ""
	if len(args) > 0 {
		requestID = args[0]
	}
	entries, err := a.store.LogEntries(ctx, requestID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "no log entries")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-12s  %s  %s",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Event, e.RequestID, e.Message)
		if e.Details != "" {
			line += "  (" + e.Details + ")"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) cmdStatus(ctx context.Context) error {
	// probe-verified reachability, not the passive link hint: the operator
	// must know when captured data is still local-only
	online := a.monitor.IsConnected()
	pendingReqs, pendingSigs, err := a.engine.Counts(ctx)
	if err != nil {
		return err
	}
	state := "offline"
	if online {
		state = "online"
	}
	fmt.Fprintf(a.out, "connectivity: %s\n", state)
	if !a.monitor.LastCheck().IsZero() {
		fmt.Fprintf(a.out, "last probe:   %s\n", a.monitor.LastCheck().Format("15:04:05"))
	}
	fmt.Fprintf(a.out, "pending:      %d request(s), %d signature(s)\n", pendingReqs, pendingSigs)
	if a.engine.IsSyncing() {
		fmt.Fprintln(a.out, "sync:         in progress")
	} else if !a.engine.LastSyncTime().IsZero() {
		fmt.Fprintf(a.out, "last sync:    %s\n", a.engine.LastSyncTime().Format("15:04:05"))
	}
	if msg := a.engine.SyncError(); msg != "" {
		fmt.Fprintf(a.out, "last error:   %s\n", msg)
	}
	return nil
}

func (a *App) cmdWorkers(ctx context.Context) error {
	if !a.monitor.Check(ctx) {
		return common.ErrorOffline
	}
	if err := a.engine.RefreshWorkers(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "worker roster refreshed")
	return nil
}
