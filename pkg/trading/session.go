package trading

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/util"
)

type State int

const (
	StateIdle State = iota
	StateDerivingCredentials
	StateInitialized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDerivingCredentials:
		return "deriving_credentials"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is one request's authenticated view of the backend. It is never
// cached or shared.
type Session struct {
	Identity      *crypto.Identity
	Credentials   clob.Credentials
	SignatureType clob.SignatureType
	Funder        string
	Client        Client
	State         State
}

// SessionInitializer turns wallet credentials into a Session:
// identity, L1 handle, create-or-derive API key, wait, L2 handle, wait.
type SessionInitializer struct {
	backend         Backend
	clock           util.Clock
	credentialDelay time.Duration
	sessionDelay    time.Duration
	logger          *zap.SugaredLogger
}

func NewSessionInitializer(backend Backend, clock util.Clock, credentialDelay, sessionDelay time.Duration, logger *zap.SugaredLogger) *SessionInitializer {
	return &SessionInitializer{
		backend:         backend,
		clock:           clock,
		credentialDelay: credentialDelay,
		sessionDelay:    sessionDelay,
		logger:          logger,
	}
}

// Initialize never retries; the returned session is in StateFailed when err is set.
func (s *SessionInitializer) Initialize(ctx context.Context, creds Credentials) (*Session, error) {
	sess := &Session{
		SignatureType: clob.SignatureType(creds.SignatureType),
		Funder:        creds.FunderAddress,
		State:         StateIdle,
	}
	fail := func(err error) (*Session, error) {
		sess.State = StateFailed
		return sess, err
	}

	id, err := crypto.FromPrivateKey(creds.PrivateKey)
	if err != nil {
		return fail(errors.WithStack(err))
	}
	sess.Identity = id

	sess.State = StateDerivingCredentials
	apiCreds, err := s.backend.NewDeriver(id).CreateOrDeriveAPIKey(ctx)
	if err != nil {
		s.logger.Warnw("credential_derivation_failed", "signer", id.Address().Hex(), "err", err)
		return fail(errors.Wrap(err, "create or derive api key"))
	}
	sess.Credentials = apiCreds

	if err := util.Sleep(ctx, s.clock, s.credentialDelay); err != nil {
		return fail(errors.WithStack(err))
	}

	client, err := s.backend.NewClient(id, apiCreds, sess.SignatureType, creds.FunderAddress)
	if err != nil {
		return fail(errors.Wrap(err, "build trading client"))
	}
	sess.Client = client

	if err := util.Sleep(ctx, s.clock, s.sessionDelay); err != nil {
		return fail(errors.WithStack(err))
	}

	sess.State = StateInitialized
	s.logger.Infow("session_initialized",
		"signer", id.Address().Hex(),
		"funder", creds.FunderAddress,
		"signature_type", creds.SignatureType,
	)
	return sess, nil
}
