package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/cryptox"
	"github.com/safetrack/fieldsign/internal/dbx"
	"github.com/safetrack/fieldsign/internal/rut"
)

// AppendSignature validates and appends one captured signature to a queued
// request. The duplicate check and the insert run in the same transaction,
// so two interleaved appends for the same subject cannot both land.
func (s *Store) AppendSignature(ctx context.Context, requestID string, draft models.SignatureDraft) (*models.Signature, error) {
	subject, err := rut.Normalize(draft.SubjectID)
	if err != nil {
		return nil, err
	}
	if err := validateCredential(draft.Credential); err != nil {
		return nil, err
	}

	sealed, nonce, err := s.cipher.Seal([]byte(draft.Credential))
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}

	sig := &models.Signature{
		ID:               uuid.NewString(),
		SubjectID:        subject,
		SealedCredential: sealed,
		CredentialNonce:  nonce,
		DisplayName:      draft.DisplayName,
		CapturedAt:       s.now(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, requestID)
		if err != nil {
			return err
		}
		switch status {
		case models.StatusSyncing:
			return common.ErrorRequestSyncing
		case models.StatusSynced:
			return common.ErrorRequestSynced
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM signatures WHERE request_id = ? AND subject_id = ?`,
			requestID, subject).Scan(&exists)
		if err != nil {
			return storageErr("check duplicate subject", err)
		}
		if exists > 0 {
			return common.ErrorDuplicateSubject
		}

		var position int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM signatures WHERE request_id = ?`,
			requestID).Scan(&position)
		if err != nil {
			return storageErr("next signature position", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO signatures (id, request_id, position, subject_id, sealed_credential, credential_nonce, display_name, captured_at, validated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			sig.ID, requestID, position, sig.SubjectID, sig.SealedCredential,
			sig.CredentialNonce, sig.DisplayName, sig.CapturedAt.UnixNano())
		if err != nil {
			return storageErr("insert signature", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sig, nil
}

// RemoveSignature deletes one signature from a queued request.
func (s *Store) RemoveSignature(ctx context.Context, requestID, signatureID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, requestID)
		if err != nil {
			return err
		}
		switch status {
		case models.StatusSyncing:
			return common.ErrorRequestSyncing
		case models.StatusSynced:
			return common.ErrorRequestSynced
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM signatures WHERE id = ? AND request_id = ?`, signatureID, requestID)
		if err != nil {
			return storageErr("delete signature", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("delete signature rows affected", err)
		}
		if n == 0 {
			return common.ErrorNotFound
		}
		return nil
	})
}

// RevealCredential decrypts a signature's PIN for submission to the remote
// authority. Callers should wipe the returned bytes after use.
func (s *Store) RevealCredential(sig *models.Signature) ([]byte, error) {
	return s.cipher.Open(sig.SealedCredential, sig.CredentialNonce)
}

// validateCredential enforces the local capture rule: a PIN is 4 to 8 digits.
func validateCredential(credential string) error {
	if credential == "" {
		return common.ErrorEmptyCredential
	}
	if len(credential) < 4 || len(credential) > 8 {
		return fmt.Errorf("%w: credential must be 4-8 digits", common.ErrorValidation)
	}
	for _, r := range credential {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: credential must be 4-8 digits", common.ErrorValidation)
		}
	}
	return nil
}

// WipeCredential zeroes a revealed credential.
func WipeCredential(b []byte) {
	cryptox.WipeBytes(b)
}

func loadSignatures(ctx context.Context, db dbx.DBTX, requestID string) ([]models.Signature, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, subject_id, sealed_credential, credential_nonce, display_name, captured_at, validated
		 FROM signatures WHERE request_id = ? ORDER BY position ASC`, requestID)
	if err != nil {
		return nil, storageErr("select signatures", err)
	}
	defer rows.Close()

	sigs := []models.Signature{}
	for rows.Next() {
		var sig models.Signature
		var capturedAt int64
		if err := rows.Scan(&sig.ID, &sig.SubjectID, &sig.SealedCredential, &sig.CredentialNonce,
			&sig.DisplayName, &capturedAt, &sig.Validated); err != nil {
			return nil, storageErr("scan signature", err)
		}
		sig.CapturedAt = time.Unix(0, capturedAt).UTC()
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select signatures", err)
	}

	return sigs, nil
}
