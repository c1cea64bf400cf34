package orch

import (
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/rs/zerolog/log"
)

// Close listeners. Each ledger entry leaves its ledger exactly once, whichever
// of the engine event or the explicit cascade gets there first.

func (o *Orchestrator) onTransportClosed(id domain.TransportID) {
	if _, ok := o.Transports.Remove(id); !ok {
		return
	}
	for _, p := range o.Producers.OnTransport(id) {
		o.closeProducer(p)
	}
	for _, c := range o.Consumers.OnTransport(id) {
		o.closeConsumer(c)
	}
	log.Debug().Str("module", "orch").Str("transport", string(id)).Msg("transport closed")
}

func (o *Orchestrator) onProducerClosed(id domain.ProducerID) {
	if _, ok := o.Producers.Remove(id); !ok {
		return
	}
	for _, c := range o.Consumers.OfProducer(id) {
		o.closeConsumer(c)
	}
	log.Debug().Str("module", "orch").Str("producer", string(id)).Msg("producer closed")
}

func (o *Orchestrator) onConsumerClosed(id domain.ConsumerID) {
	if _, ok := o.Consumers.Remove(id); ok {
		log.Debug().Str("module", "orch").Str("consumer", string(id)).Msg("consumer closed")
	}
}

func (o *Orchestrator) closeTransport(e core.TransportEntry) {
	e.Handle.Close()
	o.onTransportClosed(e.ID)
}

func (o *Orchestrator) closeProducer(e core.ProducerEntry) {
	e.Handle.Close()
	o.onProducerClosed(e.ID)
}

func (o *Orchestrator) closeConsumer(e core.ConsumerEntry) {
	e.Handle.Close()
	o.onConsumerClosed(e.ID)
}

func (o *Orchestrator) closeOwnedIn(conn domain.ConnectionID, room domain.RoomID) {
	for _, c := range o.Consumers.OwnedByIn(conn, room) {
		o.closeConsumer(c)
	}
	for _, p := range o.Producers.OwnedByIn(conn, room) {
		o.closeProducer(p)
	}
	for _, t := range o.Transports.OwnedByIn(conn, room) {
		o.closeTransport(t)
	}
}

func (o *Orchestrator) closeOwned(conn domain.ConnectionID) {
	for _, c := range o.Consumers.OwnedBy(conn) {
		o.closeConsumer(c)
	}
	for _, p := range o.Producers.OwnedBy(conn) {
		o.closeProducer(p)
	}
	for _, t := range o.Transports.OwnedBy(conn) {
		o.closeTransport(t)
	}
}
