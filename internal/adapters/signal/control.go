package signal

func (ch *channel) handlePing() {
	ch.sendJSON(typeOnly{Type: "pong"})
}
