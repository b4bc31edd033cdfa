// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// puppet is the runtime state for one bridged account.
type puppet struct {
	account    *AccountConfig
	session    *SkypeClient
	machine    *Machine
	dedup      *Deduplicator
	handledIDs *ExpiringSet
	deletedIDs *ExpiringSet
}

// SkypeConnector relays events between the home network and Skype for any
// number of puppeted accounts.
type SkypeConnector struct {
	cfg       Config
	log       zerolog.Logger
	home      HomeNetwork
	store     EventStore
	newRemote RemoteClientFactory
	metrics   *Metrics

	puppetsLock sync.Mutex
	puppets     map[string]*puppet

	stopped bool
}

// NewSkypeConnector wires the relay to its home network framework and event
// store. The remote client factory defaults to the production skypeweb
// client; tests replace it via SetRemoteClientFactory.
func NewSkypeConnector(home HomeNetwork, store EventStore, log zerolog.Logger, reg prometheus.Registerer) *SkypeConnector {
	sc := &SkypeConnector{
		log:     log.With().Str("component", "skype_connector").Logger(),
		home:    home,
		store:   store,
		metrics: NewMetrics(reg),
		puppets: make(map[string]*puppet),
	}
	sc.newRemote = func(_ *AccountConfig) RemoteClient {
		return skypeweb.NewClient(sc.cfg.APIURL, sc.cfg.GatewayURL, sc.log)
	}
	return sc
}

// SetRemoteClientFactory overrides how remote clients are built. Must be
// called before Start.
func (sc *SkypeConnector) SetRemoteClientFactory(factory RemoteClientFactory) {
	sc.newRemote = factory
}

// Config returns the loaded connector configuration.
func (sc *SkypeConnector) Config() *Config {
	return &sc.cfg
}

// Start brings up every account from the loaded configuration. Individual
// account failures are reported and skipped; one broken login never takes
// down the rest.
func (sc *SkypeConnector) Start(ctx context.Context) error {
	for _, acct := range sc.cfg.Accounts {
		if _, err := sc.NewPuppet(ctx, acct); err != nil {
			sc.log.Err(err).Str("account_id", acct.ID).Msg("Failed to start account")
		}
	}
	return nil
}

// Stop disconnects all accounts.
func (sc *SkypeConnector) Stop() {
	sc.puppetsLock.Lock()
	sc.stopped = true
	puppets := make([]*puppet, 0, len(sc.puppets))
	for _, p := range sc.puppets {
		puppets = append(puppets, p)
	}
	sc.puppets = make(map[string]*puppet)
	sc.puppetsLock.Unlock()
	for _, p := range puppets {
		p.session.Disconnect()
	}
	sc.metrics.AccountsConnected.Set(0)
}

// NewPuppet registers an account and connects it. An account id can only be
// registered once; delete it first to re-link.
func (sc *SkypeConnector) NewPuppet(ctx context.Context, acct *AccountConfig) (*puppet, error) {
	if err := acct.upgrade(); err != nil {
		return nil, err
	}

	p := &puppet{
		account:    acct,
		machine:    NewMachine(),
		dedup:      NewDeduplicator(sc.cfg.DedupWindow()),
		handledIDs: NewExpiringSet(sc.cfg.HandledIDWindow()),
		deletedIDs: NewExpiringSet(sc.cfg.DeletedIDWindow()),
	}
	p.session = NewSkypeClient(acct, sc.newRemote(acct), sc.cfg.ValidationGrace(), sc.cfg.ContactRefreshInterval(), sc.log)
	p.session.SetHandler(func(ev *SessionEvent) {
		sc.handleSkypeEvent(p, ev)
	})

	sc.puppetsLock.Lock()
	if sc.stopped {
		sc.puppetsLock.Unlock()
		return nil, fmt.Errorf("connector is stopped")
	}
	if _, exists := sc.puppets[acct.ID]; exists {
		sc.puppetsLock.Unlock()
		return nil, fmt.Errorf("account %s is already registered", acct.ID)
	}
	sc.puppets[acct.ID] = p
	sc.puppetsLock.Unlock()

	if err := sc.connectPuppet(ctx, p); err != nil {
		sc.removePuppet(acct.ID, p)
		return nil, err
	}
	return p, nil
}

// LinkAccount registers and connects an account provisioned at runtime.
func (sc *SkypeConnector) LinkAccount(ctx context.Context, acct *AccountConfig) error {
	_, err := sc.NewPuppet(ctx, acct)
	return err
}

// UnlinkAccount disconnects and forgets an account.
func (sc *SkypeConnector) UnlinkAccount(accountID string) {
	sc.DeletePuppet(accountID)
}

// DeletePuppet disconnects and forgets an account.
func (sc *SkypeConnector) DeletePuppet(accountID string) {
	sc.puppetsLock.Lock()
	p, ok := sc.puppets[accountID]
	if ok {
		delete(sc.puppets, accountID)
	}
	sc.puppetsLock.Unlock()
	if !ok {
		return
	}
	if p.machine.Current() == StateConnected {
		sc.metrics.AccountsConnected.Dec()
	}
	p.session.Disconnect()
	p.session.InvalidateCaches()
	sc.log.Info().Str("account_id", accountID).Msg("Account deleted")
}

// AccountStates snapshots every registered account's connection state.
func (sc *SkypeConnector) AccountStates() map[string]State {
	sc.puppetsLock.Lock()
	defer sc.puppetsLock.Unlock()
	states := make(map[string]State, len(sc.puppets))
	for accountID, p := range sc.puppets {
		states[accountID] = p.machine.Current()
	}
	return states
}

func (sc *SkypeConnector) getPuppet(accountID string) *puppet {
	sc.puppetsLock.Lock()
	defer sc.puppetsLock.Unlock()
	return sc.puppets[accountID]
}

func (sc *SkypeConnector) removePuppet(accountID string, p *puppet) {
	sc.puppetsLock.Lock()
	defer sc.puppetsLock.Unlock()
	if sc.puppets[accountID] == p {
		delete(sc.puppets, accountID)
	}
}

// connectPuppet runs the initial connect flow: session reuse with
// credential fallback, handled inside the session itself. Transient
// failures keep the account registered and schedule the delayed retry;
// auth and protocol failures are terminal.
func (sc *SkypeConnector) connectPuppet(ctx context.Context, p *puppet) error {
	start := StateConnectingCredentials
	if len(p.account.Session) > 0 {
		start = StateConnectingSession
	}
	if err := p.machine.Transition(start); err != nil {
		return err
	}

	if err := p.session.Connect(ctx); err != nil {
		class := classifyError(err)
		next, delay := reconnectPolicy(p.machine.Current(), class, sc.cfg.ReconnectDelay())
		if next != StateReconnecting {
			_ = p.machine.Transition(StateFailed)
			sc.home.SendStatusMessage(ctx, p.account.ID, fmt.Sprintf("Failed to connect to Skype: %v", err))
			return err
		}
		if terr := p.machine.Transition(StateReconnecting); terr != nil {
			return terr
		}
		sc.log.Err(err).Str("account_id", p.account.ID).Msg("Connect failed, retrying shortly")
		sc.home.SendStatusMessage(ctx, p.account.ID,
			fmt.Sprintf("Failed to connect to Skype: %v. Retrying shortly.", err))
		sc.scheduleReconnect(p, delay)
		return nil
	}
	return sc.markConnected(ctx, p)
}

// scheduleReconnect arms the single delayed retry. The account may have
// been deleted or replaced while the timer runs.
func (sc *SkypeConnector) scheduleReconnect(p *puppet, delay time.Duration) {
	sc.metrics.Reconnects.WithLabelValues(p.account.ID).Inc()
	time.AfterFunc(delay, func() {
		if sc.getPuppet(p.account.ID) != p {
			return
		}
		sc.reconnectPuppet(p)
	})
}

func (sc *SkypeConnector) markConnected(ctx context.Context, p *puppet) error {
	if err := p.machine.Transition(StateConnected); err != nil {
		return err
	}
	sc.metrics.AccountsConnected.Inc()

	sc.home.SetUserID(ctx, p.account.ID, p.session.SelfID())
	sc.home.SetPuppetData(ctx, p.account.ID, p.account)
	sc.home.SendStatusMessage(ctx, p.account.ID, "Connected to Skype")
	if err := p.session.SetStatus(ctx, "Online"); err != nil {
		sc.log.Debug().Err(err).Str("account_id", p.account.ID).Msg("Failed to publish presence")
	}
	return nil
}

// handleConnectionError applies the reconnect policy to a stream error.
// Transient errors schedule exactly one delayed credential reconnect;
// anything else parks the account in the failed state until re-linked.
func (sc *SkypeConnector) handleConnectionError(p *puppet, err error) {
	ctx := context.Background()
	class := classifyError(err)
	prev := p.machine.Current()
	next, delay := reconnectPolicy(prev, class, sc.cfg.ReconnectDelay())

	log := sc.log.With().
		Str("account_id", p.account.ID).
		Str("error_class", class.String()).
		Str("state", string(prev)).
		Logger()
	log.Err(err).Str("next_state", string(next)).Msg("Connection error")

	if prev == StateConnected {
		sc.metrics.AccountsConnected.Dec()
	}
	p.session.Disconnect()

	if terr := p.machine.Transition(next); terr != nil {
		log.Err(terr).Msg("State transition rejected")
		return
	}
	if next == StateFailed {
		sc.home.SendStatusMessage(ctx, p.account.ID,
			fmt.Sprintf("Disconnected from Skype (%s error): %v. Re-link the account to reconnect.", class, err))
		return
	}

	sc.home.SendStatusMessage(ctx, p.account.ID, "Connection to Skype lost, reconnecting...")
	sc.scheduleReconnect(p, delay)
}

// reconnectPuppet is the single delayed retry. The stored session already
// failed us once, so this attempt goes straight to credentials.
func (sc *SkypeConnector) reconnectPuppet(p *puppet) {
	ctx := context.Background()
	if err := p.machine.Transition(StateConnectingCredentials); err != nil {
		sc.log.Err(err).Str("account_id", p.account.ID).Msg("Reconnect aborted")
		return
	}
	if err := p.session.ConnectWithCredentials(ctx); err != nil {
		// The single retry is spent; any failure here is terminal.
		_ = p.machine.Transition(StateFailed)
		sc.home.SendStatusMessage(ctx, p.account.ID,
			fmt.Sprintf("Reconnect to Skype failed: %v. Re-link the account to reconnect.", err))
		return
	}
	if err := sc.markConnected(ctx, p); err != nil {
		sc.log.Err(err).Str("account_id", p.account.ID).Msg("Reconnect state error")
	}
}
