package signal

import (
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

func (ch *channel) handleCreateTransport() {
	if !ch.joined() {
		ch.sendError("Not joined")
		return
	}
	info, err := ch.ctl.fwd.CreateTransport(ch.ctx, ch.room, ch.peer)
	if err != nil {
		ch.log.Error().Err(err).Msg("create transport")
		ch.sendError("Failed to create transport")
		return
	}
	ch.sendJSON(transportCreatedMsg{Type: "transportCreated", Transport: info})
}

func (ch *channel) handleConnectTransport(msg inbound) {
	if !ch.joined() || msg.TransportID == "" || msg.DtlsParameters == nil {
		ch.sendError("Missing parameters")
		return
	}
	ok := ch.ctl.fwd.ConnectTransport(ch.ctx, ch.room, ch.peer, msg.TransportID, domain.RemoteParameters{
		DtlsParameters: *msg.DtlsParameters,
		IceParameters:  msg.IceParameters,
		IceCandidates:  msg.IceCandidates,
	})
	ch.sendJSON(transportConnectedMsg{Type: "transportConnected", Success: ok})
}

func (ch *channel) handleProduce(msg inbound) {
	if !ch.joined() || msg.TransportID == "" || msg.Kind == "" || msg.RtpParameters == nil {
		ch.sendError("Missing parameters")
		return
	}
	producerID, err := ch.ctl.fwd.Produce(ch.ctx, ch.room, ch.peer, msg.TransportID, msg.Kind, *msg.RtpParameters)
	if err != nil {
		ch.log.Warn().Err(err).Str("transport", msg.TransportID).Msg("produce")
		ch.sendError("Failed to produce")
		return
	}
	ch.sendJSON(producedMsg{Type: "produced", ProducerID: producerID})
	ch.broadcast(ch.room, ch.peer, newProducerMsg{
		Type:       "newProducer",
		PeerID:     ch.peer,
		ProducerID: producerID,
		Name:       ch.ctl.dir.Name(ch.room, ch.peer),
	})
}

func (ch *channel) handleConsume(msg inbound) {
	if !ch.joined() || msg.TransportID == "" || msg.ProducerID == "" || msg.RtpCapabilities == nil {
		ch.sendError("Missing parameters")
		return
	}
	consumer, err := ch.ctl.fwd.Consume(ch.ctx, ch.room, ch.peer, msg.TransportID, msg.ProducerID, *msg.RtpCapabilities)
	if err != nil {
		ch.log.Warn().Err(err).Str("producer", msg.ProducerID).Msg("consume")
		ch.sendError("Failed to consume")
		return
	}
	ch.sendJSON(consumedMsg{Type: "consumed", Consumer: consumer})
}

func (ch *channel) handleGetProducers() {
	if !ch.joined() {
		ch.sendError("Not joined")
		return
	}
	ch.sendJSON(producersMsg{Type: "producers", Producers: ch.ctl.fwd.OtherProducers(ch.room, ch.peer)})
}
