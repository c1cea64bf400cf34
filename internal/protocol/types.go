// Package protocol defines the signaling messages exchanged over the socket.
//
// Every frame is an envelope {"type", "id", "data"}. A request that carries an
// id is answered with {"type": "ack", "id": <same id>, "data": ...}.
package protocol

type MessageType string

const (
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeAck   MessageType = "ack"
	TypeError MessageType = "error"

	TypeConnectSuccess MessageType = "connect-success"

	TypeJoin            MessageType = "space:join"
	TypeLeave           MessageType = "space:leave"
	TypeGetParticipants MessageType = "space:get-participants"
	TypeUserJoined      MessageType = "space:recent-user-join"
	TypeUserLeft        MessageType = "space:recent-user-leave"

	TypeGetCapabilities  MessageType = "rtc:get-rtpCapabilities"
	TypeCreateTransport  MessageType = "rtc:create-webrtcTransport"
	TypeConnectTransport MessageType = "rtc:connect-transport"
	TypeCreateProducer   MessageType = "rtc:create-producer"
	TypeCreateConsumer   MessageType = "rtc:create-consumer"
)
