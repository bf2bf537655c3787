package memory

import (
	"context"
	"sync"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
)

// Relay receives flushed records, in insertion order.
type Relay func(ctx context.Context, record appoutbox.EventRecord)

// Outbox buffers records until Flush. Records added inside a memory unit are
// only buffered once that unit commits. With a relay attached every flushed
// record is handed over synchronously, which is how inline trigger mode
// reacts to writes without a broker.
type Outbox struct {
	mu      sync.Mutex
	records []appoutbox.EventRecord
	relay   Relay
	sent    int
}

func NewOutbox(relay Relay) *Outbox {
	return &Outbox{relay: relay}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if mu, ok := unit.(*Unit); ok && !mu.readOnly {
			return mu.stage(op{apply: func(*Store) { o.append(record) }})
		}
	}
	o.append(record)
	return nil
}

func (o *Outbox) append(record appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.records
	o.records = nil
	o.sent += len(pending)
	relay := o.relay
	o.mu.Unlock()

	if relay == nil {
		return nil
	}
	for _, rec := range pending {
		relay(ctx, rec)
	}
	return nil
}

// Pending returns records added but not yet flushed.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.records))
	copy(out, o.records)
	return out
}

// Sent counts flushed records.
func (o *Outbox) Sent() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent
}

var _ appoutbox.Outbox = (*Outbox)(nil)
