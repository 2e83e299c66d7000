package storage

import (
	"context"
	"errors"
)

// MultiAuditor fans an entry out to every sink. All sinks are tried; the
// returned error joins the individual failures.
type MultiAuditor []Auditor

func (m MultiAuditor) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	var errs []error

	for _, a := range m {
		if err := a.InsertAuditLog(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
