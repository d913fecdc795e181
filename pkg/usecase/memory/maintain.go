package memory

import (
	"context"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// MaintenanceReport summarizes one maintenance pass
type MaintenanceReport struct {
	Decayed         int
	Archived        int
	VectorCompacted int
	TextCompacted   int
}

// Maintain runs the scheduled maintenance pass: apply exponential decay by
// age since last access, archive memories whose effective importance fell
// below the threshold, then physically compact both indexes. Archived
// memories leave the indexes but stay in storage and remain listable.
func (u *UseCase) Maintain(ctx context.Context) (*MaintenanceReport, error) {
	logger := logging.From(ctx)
	now := time.Now()
	report := &MaintenanceReport{}

	u.mu.Lock()
	var toArchive []*model.Memory
	var toPersist []*model.Memory
	for _, m := range u.items {
		if m.Archived {
			continue
		}

		ageDays := now.Sub(m.LastAccessedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		m.DecayFactor = math.Exp(-math.Ln2 * ageDays / u.cfg.DecayHalfLifeDays)
		report.Decayed++

		if m.EffectiveImportance() < u.cfg.ArchiveThreshold {
			m.Archived = true
			toArchive = append(toArchive, m)
			report.Archived++
		}
		toPersist = append(toPersist, cloneMemory(m))
	}
	u.mu.Unlock()

	for _, m := range toPersist {
		if err := u.repo.UpdateMemory(ctx, m); err != nil {
			return nil, goerr.Wrap(err, "failed to persist maintenance update", goerr.V("id", m.ID))
		}
	}

	for _, m := range toArchive {
		u.vindex.Delete(m.ID)
		if err := u.tindex.Delete(ctx, m.ID); err != nil {
			return nil, goerr.Wrap(err, "failed to tombstone archived memory", goerr.V("id", m.ID))
		}
		u.cache.Invalidate(m.ID)
	}

	report.VectorCompacted = u.vindex.Compact()

	textRemoved, err := u.tindex.Compact(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compact keyword index")
	}
	report.TextCompacted = textRemoved

	logger.Info("maintenance completed",
		"decayed", report.Decayed,
		"archived", report.Archived,
		"vector_compacted", report.VectorCompacted,
		"text_compacted", report.TextCompacted)

	return report, nil
}
