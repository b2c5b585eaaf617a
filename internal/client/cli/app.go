package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/safetrack/fieldsign/internal/client/config"
	"github.com/safetrack/fieldsign/internal/client/connectivity"
	"github.com/safetrack/fieldsign/internal/client/engine"
	"github.com/safetrack/fieldsign/internal/client/remote"
	"github.com/safetrack/fieldsign/internal/client/store"
	"github.com/safetrack/fieldsign/internal/logging"
)

// App ties together the local store, the connectivity monitor and the sync
// engine behind an interactive prompt for field operators.
type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *store.Store
	monitor *connectivity.Monitor
	engine  *engine.Engine

	in  *bufio.Reader
	out io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	st, err := store.Open(ctx, store.Options{
		Path:         cfg.DatabasePath,
		DeviceSecret: []byte(cfg.DeviceSecret),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	rc := remote.NewClient(cfg.ServerEndpointAddr, cfg.DeviceToken, cfg.SubmitTimeout)

	mon := connectivity.NewMonitor(rc, connectivity.Options{
		ProbeInterval: cfg.OnlineCheckInterval,
		ProbeTimeout:  cfg.OnlineCheckTimeout,
		Logger:        logger,
	})

	eng := engine.New(st, rc, mon, engine.Options{
		SettleDelay:  cfg.SettleDelay,
		ItemDelay:    cfg.SyncItemDelay,
		RetentionAge: cfg.RetentionAge(),
		Logger:       logger,
	})

	return &App{
		config:  cfg,
		logger:  logger,
		store:   st,
		monitor: mon,
		engine:  eng,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run starts the background loops and enters the command prompt. It returns
// when the operator exits or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.monitor.Start(ctx)
	a.engine.Start(ctx)
	defer a.shutdown()

	fmt.Fprintln(a.out, "fieldsign client. Type 'help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(a.out, "\n> ")
		line, err := a.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		if cmd == "exit" || cmd == "quit" {
			return nil
		}
		a.dispatch(ctx, cmd, args)
	}
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) {
	var err error
	switch cmd {
	case "help":
		a.printHelp()
	case "new":
		err = a.cmdNewRequest(ctx)
	case "sign":
		err = a.cmdSign(ctx, args)
	case "unsign":
		err = a.cmdUnsign(ctx, args)
	case "list":
		err = a.cmdList(ctx)
	case "show":
		err = a.cmdShow(ctx, args)
	case "delete":
		err = a.cmdDelete(ctx, args)
	case "sync":
		err = a.cmdSync(ctx)
	case "retry":
		err = a.cmdRetry(ctx, args)
	case "log":
		err = a.cmdLog(ctx, args)
	case "status":
		err = a.cmdStatus(ctx)
	case "workers":
		err = a.cmdWorkers(ctx)
	default:
		fmt.Fprintf(a.out, "unknown command %q, type 'help'\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `commands:
  new            create a signature request
  sign <id>      capture a worker signature for a request
  unsign <id> <sig-id>  remove a captured signature
  list           list local requests
  show <id>      show request details
  delete <id>    delete a pending or failed request
  sync           submit all pending requests now
  retry <id>     submit a single request now
  log [id]       show the sync log
  status         connectivity and sync status
  workers        refresh the cached worker roster
  exit           quit
`)
}

func (a *App) shutdown() {
	a.engine.Stop()
	a.monitor.Stop()
	if err := a.store.Close(); err != nil {
		a.logger.Error(context.Background(), "closing store", "error", err)
	}
}
