package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresChannel is the LISTEN/NOTIFY channel. The payload is the user id.
const PostgresChannel = "cart_changes"

// PostgresNotifier multiplexes one LISTEN connection across subscribers.
// A listener reconnect is delivered to every subscriber as a change,
// because notifications sent while disconnected are lost.
type PostgresNotifier struct {
	db       *sql.DB
	listener *pq.Listener
	log      logrus.FieldLogger

	mu     sync.RWMutex
	subs   map[string]map[string]*dispatcher
	closed bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPostgresNotifier starts listening on PostgresChannel. db publishes;
// dsn opens the dedicated listener connection.
func NewPostgresNotifier(db *sql.DB, dsn string, log logrus.FieldLogger) (*PostgresNotifier, error) {
	n := &PostgresNotifier{
		db:     db,
		log:    log,
		subs:   make(map[string]map[string]*dispatcher),
		stopCh: make(chan struct{}),
	}

	n.listener = pq.NewListener(dsn, time.Second, time.Minute, n.onEvent)
	if err := n.listener.Listen(PostgresChannel); err != nil {
		n.listener.Close()
		return nil, fmt.Errorf("postgres listen failed: %w", err)
	}

	go n.run()

	log.WithField("channel", PostgresChannel).Info("PostgreSQL change listener started")
	return n, nil
}

func (n *PostgresNotifier) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		n.log.WithError(err).Warn("postgres listener connection attempt failed")
	case pq.ListenerEventDisconnected:
		n.log.WithError(err).Warn("postgres listener disconnected")
	case pq.ListenerEventReconnected:
		n.log.Info("postgres listener reconnected")
	}
}

func (n *PostgresNotifier) run() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case note, ok := <-n.listener.Notify:
			if !ok {
				return
			}
			if note == nil {
				// Reconnected: anything may have changed.
				n.signalAll()
				continue
			}
			n.signalUser(note.Extra)
		case <-ping.C:
			go func() {
				if err := n.listener.Ping(); err != nil {
					n.log.WithError(err).Debug("postgres listener ping failed")
				}
			}()
		}
	}
}

func (n *PostgresNotifier) signalUser(userID string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, d := range n.subs[userID] {
		d.signal()
	}
}

func (n *PostgresNotifier) signalAll() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, byID := range n.subs {
		for _, d := range byID {
			d.signal()
		}
	}
}

// Subscribe registers onChange for userID on the shared listener.
func (n *PostgresNotifier) Subscribe(ctx context.Context, userID string, onChange func()) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}

	var d *dispatcher
	d = newDispatcher(userID, onChange, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[userID], d.id)
		if len(n.subs[userID]) == 0 {
			delete(n.subs, userID)
		}
	})
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[string]*dispatcher)
	}
	n.subs[userID][d.id] = d
	return d, nil
}

// Publish issues pg_notify for userID.
func (n *PostgresNotifier) Publish(ctx context.Context, userID string) error {
	if _, err := n.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, PostgresChannel, userID); err != nil {
		return fmt.Errorf("postgres notify failed: %w", err)
	}
	return nil
}

// Close stops the listener and every subscription.
func (n *PostgresNotifier) Close() error {
	var err error
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		var all []*dispatcher
		for _, byID := range n.subs {
			for _, d := range byID {
				all = append(all, d)
			}
		}
		n.mu.Unlock()

		for _, d := range all {
			d.Close()
		}
		close(n.stopCh)
		err = n.listener.Close()
	})
	return err
}

var _ Notifier = (*PostgresNotifier)(nil)
