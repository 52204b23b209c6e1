package muxer

// Connection delivers muxed tags to a receiver. Implementations are driven
// from the single delivery goroutine of a session, except Close: Stop calls
// it concurrently with an in-flight Connect or Publish to cut them short.
type Connection interface {
	Connect(url string) error
	Publish(stream string) error
	Close() error
	SendVideo(data []byte, dts uint32) error
	SendAudio(data []byte, dts uint32) error
}

// MetadataWriter is implemented by connections that accept an onMetaData
// script body.
type MetadataWriter interface {
	SendMetadata(data []byte, dts uint32) error
}

// Observer callbacks run one at a time, in order, off the session worker.
// They may call Start and Stop.
type Observer interface {
	OnConnectSuccess()
	OnConnectFailure(err error)
	OnDisconnect()
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	ConnectSuccess func()
	ConnectFailure func(err error)
	Disconnect     func()
}

func (o ObserverFuncs) OnConnectSuccess() {
	if o.ConnectSuccess != nil {
		o.ConnectSuccess()
	}
}

func (o ObserverFuncs) OnConnectFailure(err error) {
	if o.ConnectFailure != nil {
		o.ConnectFailure(err)
	}
}

func (o ObserverFuncs) OnDisconnect() {
	if o.Disconnect != nil {
		o.Disconnect()
	}
}
