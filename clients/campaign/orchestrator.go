package campaign

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/metrics"
	promoname "github.com/Asort97/promoBot/clients/promoName"
	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

const DefaultMaxPerRequest = 100

// Gateway is the part of the panel client the dialogue needs.
type Gateway interface {
	CreateAccount(ctx context.Context, tag string, trafficLimitBytes int64) (remnawave.Account, error)
	ListAccounts(ctx context.Context) ([]remnawave.Account, error)
	DeleteAccount(ctx context.Context, acc remnawave.Account) error
	SubscriptionLink(ctx context.Context, acc remnawave.Account) (string, bool)
}

type Reporter interface {
	WriteReport(tag string, links []string) (string, error)
}

// Progress is called after every account attempt of a batch.
type Progress func(done, total int)

type Options struct {
	Gateway       Gateway
	Reporter      Reporter
	MaxPerRequest int
	Logger        *zap.Logger
}

// Orchestrator walks admins through campaign creation and cleanup. Sessions are
// kept per admin; calls for the same admin must not overlap.
type Orchestrator struct {
	gw       Gateway
	reporter Reporter
	max      int
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		gw:       opts.Gateway,
		reporter: opts.Reporter,
		max:      opts.MaxPerRequest,
		log:      opts.Logger,
		sessions: make(map[int64]*Session),
	}
	if o.max < 1 {
		o.max = DefaultMaxPerRequest
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	o.log = o.log.Named("campaign")
	return o
}

// MaxPerRequest is the largest batch an admin may ask for.
func (o *Orchestrator) MaxPerRequest() int {
	return o.max
}

// menuStates are the states a main-menu action may interrupt.
var menuStates = []State{
	StateIdle,
	StateAwaitingTag,
	StateAwaitingLimit,
	StateAwaitingQuantity,
	StateAwaitingConfirmation,
	StateSelectingTag,
	StatePreviewingDeletion,
	StateAwaitingDeleteConfirmation,
}

// BeginCreate starts the creation wizard.
func (o *Orchestrator) BeginCreate(admin int64) error {
	_, err := o.enterFromMenu(admin, StateAwaitingTag)
	return err
}

// SubmitTag normalizes and validates the campaign tag typed by the admin.
// A *promoname.TagError keeps the wizard waiting for another tag.
func (o *Orchestrator) SubmitTag(admin int64, text string) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session(admin)
	if s.State != StateAwaitingTag {
		return *s, fmt.Errorf("%w: %s", ErrUnexpectedStep, s.State)
	}

	tag := promoname.NormalizeTag(text)
	if err := promoname.ValidateTag(tag); err != nil {
		return *s, err
	}
	s.Tag = tag
	s.State = StateAwaitingLimit
	return *s, nil
}

func (o *Orchestrator) ChooseLimit(admin int64, gb int) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session(admin)
	if s.State != StateAwaitingLimit {
		return *s, fmt.Errorf("%w: %s", ErrUnexpectedStep, s.State)
	}
	if !remnawave.IsTrafficLimit(gb) {
		return *s, fmt.Errorf("%w: %d GB", ErrInvalidLimit, gb)
	}
	s.LimitGB = gb
	s.State = StateAwaitingQuantity
	return *s, nil
}

func (o *Orchestrator) SubmitQuantity(admin int64, text string) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session(admin)
	if s.State != StateAwaitingQuantity {
		return *s, fmt.Errorf("%w: %s", ErrUnexpectedStep, s.State)
	}

	input := strings.TrimSpace(text)
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > o.max {
		return *s, &QuantityError{Min: 1, Max: o.max, Input: input}
	}
	s.Quantity = n
	s.State = StateAwaitingConfirmation
	return *s, nil
}

// CreateResult reports one finished batch.
type CreateResult struct {
	Tag       string
	LimitGB   int
	Requested int
	Created   int
	Failed    int
	// Links holds the subscription URLs that could be resolved, in creation order.
	Links       []string
	Unavailable int
	ReportPath  string
	ReportErr   error
	Errors      []error
}

// ConfirmCreate runs the confirmed batch. Accounts are created one after another and a
// failed account does not stop the batch. progress may be nil.
func (o *Orchestrator) ConfirmCreate(ctx context.Context, admin int64, progress Progress) (CreateResult, error) {
	s, err := o.transition(admin, StateExecuting, StateAwaitingConfirmation)
	if err != nil {
		return CreateResult{}, err
	}
	defer o.clear(admin, s)

	o.mu.Lock()
	job := *s
	o.mu.Unlock()

	res := CreateResult{Tag: job.Tag, LimitGB: job.LimitGB, Requested: job.Quantity}
	log := o.log.With(zap.Int64("admin", admin), zap.String("tag", job.Tag))
	log.Info("batch started", zap.Int("quantity", job.Quantity), zap.Int("limit_gb", job.LimitGB))

	limit := remnawave.GBToBytes(job.LimitGB)
	created := make([]remnawave.Account, 0, job.Quantity)
	for i := 0; i < job.Quantity; i++ {
		if err := ctx.Err(); err != nil {
			res.Failed += job.Quantity - i
			res.Errors = append(res.Errors, fmt.Errorf("batch interrupted: %w", err))
			break
		}
		acc, err := o.gw.CreateAccount(ctx, job.Tag, limit)
		metrics.RecordCreated(err == nil)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("account %d: %w", i+1, err))
			log.Warn("account creation failed", zap.Int("n", i+1), zap.Error(err))
		} else {
			res.Created++
			created = append(created, acc)
		}
		if progress != nil {
			progress(i+1, job.Quantity)
		}
	}

	o.setState(s, StateReporting)
	for _, acc := range created {
		link, ok := o.gw.SubscriptionLink(ctx, acc)
		if !ok {
			res.Unavailable++
			continue
		}
		res.Links = append(res.Links, link)
	}

	if len(res.Links) > 0 && o.reporter != nil {
		res.ReportPath, res.ReportErr = o.reporter.WriteReport(job.Tag, res.Links)
		if res.ReportErr != nil {
			log.Error("report not written", zap.Error(res.ReportErr))
		}
	}

	log.Info("batch finished",
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
		zap.Int("unavailable", res.Unavailable),
		zap.String("report", res.ReportPath),
	)
	return res, nil
}

func (o *Orchestrator) setState(s *Session, st State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s.State = st
}

func inStates(st State, states []State) bool {
	for _, v := range states {
		if v == st {
			return true
		}
	}
	return false
}
