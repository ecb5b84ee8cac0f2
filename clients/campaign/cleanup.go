package campaign

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/metrics"
	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

// DeleteResult reports one cleanup of used accounts.
type DeleteResult struct {
	Tag string
	// Total is the number of accounts the tag had when the cleanup started.
	Total     int
	Attempted int
	Deleted   int
	Failed    int
	Errors    []error
}

// Remaining is the number of accounts the tag still has.
func (r DeleteResult) Remaining() int {
	return r.Total - r.Deleted
}

// BeginDelete lists every campaign so the admin can pick one to clean up. With no
// campaigns on the panel the dialogue returns to idle and the slice is empty.
func (o *Orchestrator) BeginDelete(ctx context.Context, admin int64) ([]Snapshot, error) {
	s, err := o.enterFromMenu(admin, StateSelectingTag)
	if err != nil {
		return nil, err
	}

	accounts, err := o.gw.ListAccounts(ctx)
	if err != nil {
		o.clear(admin, s)
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	snapshots := Summarize(accounts)
	if len(snapshots) == 0 {
		o.clear(admin, s)
	}
	return snapshots, nil
}

// SelectTag previews the cleanup of tag and waits for confirmation.
func (o *Orchestrator) SelectTag(ctx context.Context, admin int64, tag string) (Snapshot, error) {
	s, err := o.transition(admin, StatePreviewingDeletion, StateSelectingTag)
	if err != nil {
		return Snapshot{}, err
	}

	accounts, err := o.gw.ListAccounts(ctx)
	if err != nil {
		o.clear(admin, s)
		return Snapshot{}, fmt.Errorf("preview %s: %w", tag, err)
	}
	snap := SnapshotOf(tag, accounts)
	if snap.Total == 0 {
		o.clear(admin, s)
		return snap, fmt.Errorf("%w: %s", ErrTagNotFound, tag)
	}

	o.mu.Lock()
	s.SelectedTag = tag
	s.State = StateAwaitingDeleteConfirmation
	o.mu.Unlock()
	return snap, nil
}

// ConfirmDelete removes the used accounts of the selected tag. The panel is listed again
// first, so accounts used since the preview are included. A failed deletion does not stop
// the rest.
func (o *Orchestrator) ConfirmDelete(ctx context.Context, admin int64) (DeleteResult, error) {
	s, err := o.transition(admin, StateDeleting, StateAwaitingDeleteConfirmation)
	if err != nil {
		return DeleteResult{}, err
	}
	defer o.clear(admin, s)

	o.mu.Lock()
	tag := s.SelectedTag
	o.mu.Unlock()

	res := DeleteResult{Tag: tag}
	accounts, err := o.gw.ListAccounts(ctx)
	if err != nil {
		return res, fmt.Errorf("delete %s: %w", tag, err)
	}

	var used []remnawave.Account
	for _, acc := range accounts {
		if acc.Tag != tag {
			continue
		}
		res.Total++
		if acc.Used() {
			used = append(used, acc)
		}
	}
	res.Attempted = len(used)

	log := o.log.With(zap.Int64("admin", admin), zap.String("tag", tag))
	log.Info("cleanup started", zap.Int("total", res.Total), zap.Int("used", len(used)))

	for _, acc := range used {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("cleanup interrupted: %w", err))
			res.Failed += res.Attempted - res.Deleted - res.Failed
			break
		}
		err := o.gw.DeleteAccount(ctx, acc)
		metrics.RecordDeleted(err == nil)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			log.Warn("account deletion failed", zap.String("username", acc.Username), zap.Error(err))
			continue
		}
		res.Deleted++
	}

	log.Info("cleanup finished", zap.Int("deleted", res.Deleted), zap.Int("failed", res.Failed))
	return res, nil
}

// Statistics returns every campaign with totals. It leaves the admin at the main menu.
func (o *Orchestrator) Statistics(ctx context.Context, admin int64) (Overview, error) {
	s, err := o.enterFromMenu(admin, StateIdle)
	if err != nil {
		return Overview{}, err
	}
	o.clear(admin, s)

	accounts, err := o.gw.ListAccounts(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("statistics: %w", err)
	}
	return overview(accounts), nil
}

// enterFromMenu resets the session of admin to a fresh one in state next, unless a
// batch or cleanup is running.
func (o *Orchestrator) enterFromMenu(admin int64, next State) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session(admin)
	if !inStates(s.State, menuStates) {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStep, s.State)
	}
	*s = Session{State: next}
	return s, nil
}
