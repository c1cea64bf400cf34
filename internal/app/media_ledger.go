package app

import (
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
)

// ProducerLedger tracks outbound media sources.
type ProducerLedger struct {
	l *ledger[domain.ProducerID, core.ProducerEntry]
}

func NewProducerLedger() *ProducerLedger {
	return &ProducerLedger{l: newLedger[domain.ProducerID, core.ProducerEntry]("producer")}
}

func (p *ProducerLedger) Add(e core.ProducerEntry) error { return p.l.add(e.ID, e) }

func (p *ProducerLedger) Get(id domain.ProducerID) (core.ProducerEntry, bool) {
	return p.l.get(id)
}

func (p *ProducerLedger) Remove(id domain.ProducerID) (core.ProducerEntry, bool) {
	return p.l.remove(id)
}

func (p *ProducerLedger) OwnedBy(conn domain.ConnectionID) []core.ProducerEntry {
	return p.l.ownedBy(conn)
}

func (p *ProducerLedger) OwnedByIn(conn domain.ConnectionID, room domain.RoomID) []core.ProducerEntry {
	return p.l.ownedByIn(conn, room)
}

func (p *ProducerLedger) OnTransport(id domain.TransportID) []core.ProducerEntry {
	return p.l.filter(func(e core.ProducerEntry) bool { return e.Transport == id })
}

// Latest is the newest producer conn owns in room.
func (p *ProducerLedger) Latest(conn domain.ConnectionID, room domain.RoomID) (core.ProducerEntry, bool) {
	return p.l.newest(func(e core.ProducerEntry) bool { return e.Connection == conn && e.Room == room })
}

func (p *ProducerLedger) Len() int { return p.l.len() }

// ConsumerLedger tracks inbound media sinks.
type ConsumerLedger struct {
	l *ledger[domain.ConsumerID, core.ConsumerEntry]
}

func NewConsumerLedger() *ConsumerLedger {
	return &ConsumerLedger{l: newLedger[domain.ConsumerID, core.ConsumerEntry]("consumer")}
}

func (c *ConsumerLedger) Add(e core.ConsumerEntry) error { return c.l.add(e.ID, e) }

func (c *ConsumerLedger) Get(id domain.ConsumerID) (core.ConsumerEntry, bool) {
	return c.l.get(id)
}

func (c *ConsumerLedger) Remove(id domain.ConsumerID) (core.ConsumerEntry, bool) {
	return c.l.remove(id)
}

func (c *ConsumerLedger) OwnedBy(conn domain.ConnectionID) []core.ConsumerEntry {
	return c.l.ownedBy(conn)
}

func (c *ConsumerLedger) OwnedByIn(conn domain.ConnectionID, room domain.RoomID) []core.ConsumerEntry {
	return c.l.ownedByIn(conn, room)
}

func (c *ConsumerLedger) OnTransport(id domain.TransportID) []core.ConsumerEntry {
	return c.l.filter(func(e core.ConsumerEntry) bool { return e.Transport == id })
}

func (c *ConsumerLedger) OfProducer(id domain.ProducerID) []core.ConsumerEntry {
	return c.l.filter(func(e core.ConsumerEntry) bool { return e.Producer == id })
}

func (c *ConsumerLedger) Len() int { return c.l.len() }
