package service

import (
	"context"

	"fanlive/internal/models"
	"fanlive/internal/observability"
	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/settings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// LiveDetails is the join-time view of a live.
type LiveDetails struct {
	Live        *models.Live
	Credential  rtc.Credential
	Earnings    int64
	TipEarnings int64
	Bookings    int64
	Goal        *models.GoalProgress
	TipMenu     []models.LiveTipMenu
	Viewers     int64
}

// CallCredential is what a call participant needs to join the room.
type CallCredential struct {
	AppID         string
	KeyID         string
	Token         string
	ParticipantID int
	Call          *models.Call
}

// LiveDetailsService assembles join payloads and issues credentials.
type LiveDetailsService struct {
	store    *repository.Store
	settings settings.Source
	issuer   *rtc.Issuer
	goals    *GoalService
	viewers  ViewerCounter
	rooms    *RoomAccessValidator
	effects  *SideEffects
}

func NewLiveDetailsService(
	store *repository.Store,
	src settings.Source,
	issuer *rtc.Issuer,
	goals *GoalService,
	viewers ViewerCounter,
	effects *SideEffects,
) *LiveDetailsService {
	return &LiveDetailsService{
		store:    store,
		settings: src,
		issuer:   issuer,
		goals:    goals,
		viewers:  viewers,
		rooms:    NewRoomAccessValidator(store.Calls),
		effects:  effects,
	}
}

func (s *LiveDetailsService) issue(ctx context.Context, kind, channel string, role rtc.Role) (rtc.Credential, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return rtc.Credential{}, models.NewInternalError(err)
	}
	cred, err := s.issuer.Issue(settings.AppCredentials(cfg), channel, role)
	if err != nil {
		return rtc.Credential{}, credentialError(err)
	}
	observability.CredentialsIssued.WithLabelValues(kind, string(role)).Inc()
	return cred, nil
}

// Join lets the owner go live: it checks the caller, issues a publisher
// credential and gathers the dashboard figures.
func (s *LiveDetailsService) Join(ctx context.Context, callerID, liveID uint) (details *LiveDetails, err error) {
	ctx, span := observability.StartSpan(ctx, "live.join", attribute.Int64("live.id", int64(liveID)))
	defer func() {
		observability.EndSpan(span, err)
		observability.RecordLiveOperation("join", models.ErrorCode(err))
	}()

	caller, err := s.store.Users.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.IsVerified {
		return nil, models.NewForbiddenError("Account is not verified")
	}

	live, err := s.store.Lives.GetByID(ctx, liveID)
	if err != nil {
		return nil, err
	}
	if live.Status != models.LiveStatusScheduled {
		return nil, models.NewInvalidStateError("Live stream is " + live.Status.String())
	}
	if live.UserID != callerID {
		return nil, models.NewForbiddenError("You are not the owner of this live")
	}

	cred, err := s.issue(ctx, "live", live.ChannelName, rtc.RoleFor(live.UserID, callerID))
	if err != nil {
		return nil, err
	}

	details = &LiveDetails{Live: live, Credential: cred}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		details.Earnings, err = s.store.Earnings.SumForLive(gctx, live.ID, live.UserID, models.LiveEarningTypes)
		return err
	})
	g.Go(func() (err error) {
		details.TipEarnings, err = s.store.Earnings.SumForLive(gctx, live.ID, live.UserID, models.LiveTipTypes)
		return err
	})
	g.Go(func() (err error) {
		details.Bookings, err = s.store.Earnings.BookingCount(gctx, live.ID)
		return err
	})
	s.gatherShared(gctx, g, details)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.effects != nil && !live.CreatorJoined {
		s.effects.Go(ctx, "creator_joined_flip", func(ctx context.Context) error {
			_, err := s.store.Lives.MarkCreatorJoined(ctx, live.ID)
			return err
		})
	}
	s.syncMirror(ctx, live.ID)
	return details, nil
}

// Watch issues a subscriber credential to a fan holding a booking.
func (s *LiveDetailsService) Watch(ctx context.Context, callerID, liveID uint) (details *LiveDetails, err error) {
	ctx, span := observability.StartSpan(ctx, "live.watch", attribute.Int64("live.id", int64(liveID)))
	defer func() {
		observability.EndSpan(span, err)
		observability.RecordLiveOperation("watch", models.ErrorCode(err))
	}()

	live, err := s.store.Lives.GetByID(ctx, liveID)
	if err != nil {
		return nil, err
	}
	if live.Status != models.LiveStatusScheduled {
		return nil, models.NewInvalidStateError("Live stream is " + live.Status.String())
	}
	if live.UserID == callerID {
		return nil, models.NewForbiddenError("Owners join their live through go")
	}
	booked, err := s.store.Earnings.HasBooking(ctx, live.ID, callerID)
	if err != nil {
		return nil, err
	}
	if !booked {
		return nil, models.NewForbiddenError("You have not booked this live")
	}

	cred, err := s.issue(ctx, "watch", live.ChannelName, rtc.RoleFor(live.UserID, callerID))
	if err != nil {
		return nil, err
	}

	details = &LiveDetails{Live: live, Credential: cred}
	g, gctx := errgroup.WithContext(ctx)
	s.gatherShared(gctx, g, details)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.syncMirror(ctx, live.ID)
	return details, nil
}

// gatherShared queues the fetches common to owners and fans.
func (s *LiveDetailsService) gatherShared(ctx context.Context, g *errgroup.Group, d *LiveDetails) {
	liveID := d.Live.ID
	g.Go(func() (err error) {
		d.Goal, err = currentProgress(ctx, s.store, liveID)
		return err
	})
	g.Go(func() (err error) {
		d.TipMenu, err = s.store.TipMenus.ListActive(ctx, liveID)
		return err
	})
	g.Go(func() (err error) {
		if s.viewers == nil {
			return nil
		}
		d.Viewers, err = s.viewers.Count(ctx, liveID)
		return err
	})
}

func (s *LiveDetailsService) syncMirror(ctx context.Context, liveID uint) {
	if s.effects == nil || s.goals == nil {
		return
	}
	s.effects.Go(ctx, "goal_mirror_sync", func(ctx context.Context) error {
		return s.goals.SyncMirror(ctx, liveID)
	})
}

// CallCredential issues a publisher credential to a participant of the active call in roomID.
func (s *LiveDetailsService) CallCredential(ctx context.Context, callerID uint, roomID string) (*CallCredential, error) {
	access, err := s.rooms.Validate(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	app := settings.AppCredentials(cfg)
	cred, err := s.issuer.Issue(app, roomID, rtc.RolePublisher)
	if err != nil {
		return nil, credentialError(err)
	}
	observability.CredentialsIssued.WithLabelValues("call", string(rtc.RolePublisher)).Inc()
	return &CallCredential{
		AppID:         cred.AppID,
		KeyID:         rtc.KeyID(app.AppSecret),
		Token:         cred.Token,
		ParticipantID: cred.ParticipantID,
		Call:          access.Call,
	}, nil
}
