package protocol

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// REPLICATED ENTITY DELTAS
// =============================================================================

// CounterDelta is the net change applied to a counter since the last flush.
type CounterDelta struct {
	Change int64
}

func (m *CounterDelta) marshalAppend(b []byte) []byte {
	return appendInt64(b, 1, m.Change)
}

func (m *CounterDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeInt64(b, &m.Change)
		}
		return 0, nil
	})
}

// Register clock kinds.
const (
	ClockDefault             int32 = 0
	ClockReverse             int32 = 1
	ClockCustom              int32 = 2
	ClockCustomAutoIncrement int32 = 3
)

// RegisterDelta is the last assigned value and clock of a register.
type RegisterDelta struct {
	Value            *Any
	Clock            int32
	CustomClockValue int64
}

func (m *RegisterDelta) marshalAppend(b []byte) []byte {
	if m.Value != nil {
		b = appendMessage(b, 1, m.Value)
	}
	b = appendInt32(b, 2, m.Clock)
	b = appendInt64(b, 3, m.CustomClockValue)
	return b
}

func (m *RegisterDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Value = new(Any)
			return consumeMessage(b, m.Value)
		case 2:
			return consumeInt32(b, &m.Clock)
		case 3:
			return consumeInt64(b, &m.CustomClockValue)
		}
		return 0, nil
	})
}

// SetDelta describes membership changes of a set.
type SetDelta struct {
	Cleared bool
	Removed []*Any
	Added   []*Any
}

func (m *SetDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.Cleared)
	for _, e := range m.Removed {
		b = appendMessage(b, 2, e)
	}
	for _, e := range m.Added {
		b = appendMessage(b, 3, e)
	}
	return b
}

func (m *SetDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.Cleared)
		case 2:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Removed = append(m.Removed, e)
			return n, nil
		case 3:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Added = append(m.Added, e)
			return n, nil
		}
		return 0, nil
	})
}

// ORMapEntryDelta carries one map entry's key and its value sub-delta.
type ORMapEntryDelta struct {
	Key   *Any
	Delta *ReplicatedEntityDelta
}

func (m *ORMapEntryDelta) marshalAppend(b []byte) []byte {
	if m.Key != nil {
		b = appendMessage(b, 1, m.Key)
	}
	if m.Delta != nil {
		b = appendMessage(b, 2, m.Delta)
	}
	return b
}

func (m *ORMapEntryDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Key = new(Any)
			return consumeMessage(b, m.Key)
		case 2:
			m.Delta = new(ReplicatedEntityDelta)
			return consumeMessage(b, m.Delta)
		}
		return 0, nil
	})
}

// ORMapDelta describes changes to a map of nested replicated data.
type ORMapDelta struct {
	Cleared bool
	Removed []*Any
	Updated []*ORMapEntryDelta
	Added   []*ORMapEntryDelta
}

func (m *ORMapDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.Cleared)
	for _, e := range m.Removed {
		b = appendMessage(b, 2, e)
	}
	for _, e := range m.Updated {
		b = appendMessage(b, 3, e)
	}
	for _, e := range m.Added {
		b = appendMessage(b, 4, e)
	}
	return b
}

func (m *ORMapDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.Cleared)
		case 2:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Removed = append(m.Removed, e)
			return n, nil
		case 3:
			e := new(ORMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Updated = append(m.Updated, e)
			return n, nil
		case 4:
			e := new(ORMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Added = append(m.Added, e)
			return n, nil
		}
		return 0, nil
	})
}

// CounterMapEntryDelta carries one counter map entry's key and counter delta.
type CounterMapEntryDelta struct {
	Key   *Any
	Delta *CounterDelta
}

func (m *CounterMapEntryDelta) marshalAppend(b []byte) []byte {
	if m.Key != nil {
		b = appendMessage(b, 1, m.Key)
	}
	if m.Delta != nil {
		b = appendMessage(b, 2, m.Delta)
	}
	return b
}

func (m *CounterMapEntryDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Key = new(Any)
			return consumeMessage(b, m.Key)
		case 2:
			m.Delta = new(CounterDelta)
			return consumeMessage(b, m.Delta)
		}
		return 0, nil
	})
}

// CounterMapDelta mirrors ORMapDelta with counter-typed value sub-deltas.
type CounterMapDelta struct {
	Cleared bool
	Removed []*Any
	Updated []*CounterMapEntryDelta
	Added   []*CounterMapEntryDelta
}

func (m *CounterMapDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.Cleared)
	for _, e := range m.Removed {
		b = appendMessage(b, 2, e)
	}
	for _, e := range m.Updated {
		b = appendMessage(b, 3, e)
	}
	for _, e := range m.Added {
		b = appendMessage(b, 4, e)
	}
	return b
}

func (m *CounterMapDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.Cleared)
		case 2:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Removed = append(m.Removed, e)
			return n, nil
		case 3:
			e := new(CounterMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Updated = append(m.Updated, e)
			return n, nil
		case 4:
			e := new(CounterMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Added = append(m.Added, e)
			return n, nil
		}
		return 0, nil
	})
}

// RegisterMapEntryDelta carries one register map entry's key and register delta.
type RegisterMapEntryDelta struct {
	Key   *Any
	Delta *RegisterDelta
}

func (m *RegisterMapEntryDelta) marshalAppend(b []byte) []byte {
	if m.Key != nil {
		b = appendMessage(b, 1, m.Key)
	}
	if m.Delta != nil {
		b = appendMessage(b, 2, m.Delta)
	}
	return b
}

func (m *RegisterMapEntryDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Key = new(Any)
			return consumeMessage(b, m.Key)
		case 2:
			m.Delta = new(RegisterDelta)
			return consumeMessage(b, m.Delta)
		}
		return 0, nil
	})
}

// RegisterMapDelta mirrors ORMapDelta with register-typed value sub-deltas.
type RegisterMapDelta struct {
	Cleared bool
	Removed []*Any
	Updated []*RegisterMapEntryDelta
	Added   []*RegisterMapEntryDelta
}

func (m *RegisterMapDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.Cleared)
	for _, e := range m.Removed {
		b = appendMessage(b, 2, e)
	}
	for _, e := range m.Updated {
		b = appendMessage(b, 3, e)
	}
	for _, e := range m.Added {
		b = appendMessage(b, 4, e)
	}
	return b
}

func (m *RegisterMapDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.Cleared)
		case 2:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Removed = append(m.Removed, e)
			return n, nil
		case 3:
			e := new(RegisterMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Updated = append(m.Updated, e)
			return n, nil
		case 4:
			e := new(RegisterMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Added = append(m.Added, e)
			return n, nil
		}
		return 0, nil
	})
}

// MultiMapEntryDelta carries one multimap entry's key and set delta.
type MultiMapEntryDelta struct {
	Key   *Any
	Delta *SetDelta
}

func (m *MultiMapEntryDelta) marshalAppend(b []byte) []byte {
	if m.Key != nil {
		b = appendMessage(b, 1, m.Key)
	}
	if m.Delta != nil {
		b = appendMessage(b, 2, m.Delta)
	}
	return b
}

func (m *MultiMapEntryDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Key = new(Any)
			return consumeMessage(b, m.Key)
		case 2:
			m.Delta = new(SetDelta)
			return consumeMessage(b, m.Delta)
		}
		return 0, nil
	})
}

// MultiMapDelta mirrors ORMapDelta with set-typed value sub-deltas.
type MultiMapDelta struct {
	Cleared bool
	Removed []*Any
	Updated []*MultiMapEntryDelta
	Added   []*MultiMapEntryDelta
}

func (m *MultiMapDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.Cleared)
	for _, e := range m.Removed {
		b = appendMessage(b, 2, e)
	}
	for _, e := range m.Updated {
		b = appendMessage(b, 3, e)
	}
	for _, e := range m.Added {
		b = appendMessage(b, 4, e)
	}
	return b
}

func (m *MultiMapDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.Cleared)
		case 2:
			e := new(Any)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Removed = append(m.Removed, e)
			return n, nil
		case 3:
			e := new(MultiMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Updated = append(m.Updated, e)
			return n, nil
		case 4:
			e := new(MultiMapEntryDelta)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Added = append(m.Added, e)
			return n, nil
		}
		return 0, nil
	})
}

// VoteDelta carries this node's vote; tallies are filled in by the proxy on
// inbound deltas, and by the SDK only on an initial outbound delta.
type VoteDelta struct {
	SelfVote    bool
	VotesFor    int32
	TotalVoters int32
}

func (m *VoteDelta) marshalAppend(b []byte) []byte {
	b = appendBool(b, 1, m.SelfVote)
	b = appendInt32(b, 2, m.VotesFor)
	b = appendInt32(b, 3, m.TotalVoters)
	return b
}

func (m *VoteDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(b, &m.SelfVote)
		case 2:
			return consumeInt32(b, &m.VotesFor)
		case 3:
			return consumeInt32(b, &m.TotalVoters)
		}
		return 0, nil
	})
}

// ReplicatedEntityDelta is the delta envelope; exactly one kind field is set.
type ReplicatedEntityDelta struct {
	Counter     *CounterDelta
	Register    *RegisterDelta
	Set         *SetDelta
	Ormap       *ORMapDelta
	CounterMap  *CounterMapDelta
	RegisterMap *RegisterMapDelta
	MultiMap    *MultiMapDelta
	Vote        *VoteDelta
}

func (m *ReplicatedEntityDelta) marshalAppend(b []byte) []byte {
	if m.Counter != nil {
		b = appendMessage(b, 1, m.Counter)
	}
	if m.Register != nil {
		b = appendMessage(b, 2, m.Register)
	}
	if m.Set != nil {
		b = appendMessage(b, 3, m.Set)
	}
	if m.Ormap != nil {
		b = appendMessage(b, 4, m.Ormap)
	}
	if m.CounterMap != nil {
		b = appendMessage(b, 5, m.CounterMap)
	}
	if m.RegisterMap != nil {
		b = appendMessage(b, 6, m.RegisterMap)
	}
	if m.MultiMap != nil {
		b = appendMessage(b, 7, m.MultiMap)
	}
	if m.Vote != nil {
		b = appendMessage(b, 8, m.Vote)
	}
	return b
}

func (m *ReplicatedEntityDelta) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Counter = new(CounterDelta)
			return consumeMessage(b, m.Counter)
		case 2:
			m.Register = new(RegisterDelta)
			return consumeMessage(b, m.Register)
		case 3:
			m.Set = new(SetDelta)
			return consumeMessage(b, m.Set)
		case 4:
			m.Ormap = new(ORMapDelta)
			return consumeMessage(b, m.Ormap)
		case 5:
			m.CounterMap = new(CounterMapDelta)
			return consumeMessage(b, m.CounterMap)
		case 6:
			m.RegisterMap = new(RegisterMapDelta)
			return consumeMessage(b, m.RegisterMap)
		case 7:
			m.MultiMap = new(MultiMapDelta)
			return consumeMessage(b, m.MultiMap)
		case 8:
			m.Vote = new(VoteDelta)
			return consumeMessage(b, m.Vote)
		}
		return 0, nil
	})
}

// =============================================================================
// REPLICATED ENTITY FRAMES
// =============================================================================

// ReplicatedEntityInit is the first frame of a replicated entity stream.
type ReplicatedEntityInit struct {
	ServiceName string
	EntityId    string
	Delta       *ReplicatedEntityDelta
}

func (m *ReplicatedEntityInit) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.EntityId)
	if m.Delta != nil {
		b = appendMessage(b, 3, m.Delta)
	}
	return b
}

func (m *ReplicatedEntityInit) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.EntityId)
		case 3:
			m.Delta = new(ReplicatedEntityDelta)
			return consumeMessage(b, m.Delta)
		}
		return 0, nil
	})
}

// ReplicatedEntityStreamIn is an inbound frame: init, delta, command or stream
// cancellation.
type ReplicatedEntityStreamIn struct {
	Init            *ReplicatedEntityInit
	Delta           *ReplicatedEntityDelta
	Command         *Command
	StreamCancelled *StreamCancelled
}

func (m *ReplicatedEntityStreamIn) marshalAppend(b []byte) []byte {
	if m.Init != nil {
		b = appendMessage(b, 1, m.Init)
	}
	if m.Delta != nil {
		b = appendMessage(b, 2, m.Delta)
	}
	if m.Command != nil {
		b = appendMessage(b, 3, m.Command)
	}
	if m.StreamCancelled != nil {
		b = appendMessage(b, 4, m.StreamCancelled)
	}
	return b
}

func (m *ReplicatedEntityStreamIn) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Init = new(ReplicatedEntityInit)
			return consumeMessage(b, m.Init)
		case 2:
			m.Delta = new(ReplicatedEntityDelta)
			return consumeMessage(b, m.Delta)
		case 3:
			m.Command = new(Command)
			return consumeMessage(b, m.Command)
		case 4:
			m.StreamCancelled = new(StreamCancelled)
			return consumeMessage(b, m.StreamCancelled)
		}
		return 0, nil
	})
}

// ReplicatedEntityDelete discards the entity's replicated state.
type ReplicatedEntityDelete struct{}

func (m *ReplicatedEntityDelete) marshalAppend(b []byte) []byte { return b }
func (m *ReplicatedEntityDelete) unmarshal(b []byte) error      { return nil }

// ReplicatedEntityStateAction is the state mutation attached to a reply.
type ReplicatedEntityStateAction struct {
	Update *ReplicatedEntityDelta
	Delete *ReplicatedEntityDelete
}

func (m *ReplicatedEntityStateAction) marshalAppend(b []byte) []byte {
	if m.Update != nil {
		b = appendMessage(b, 1, m.Update)
	}
	if m.Delete != nil {
		b = appendMessage(b, 2, m.Delete)
	}
	return b
}

func (m *ReplicatedEntityStateAction) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Update = new(ReplicatedEntityDelta)
			return consumeMessage(b, m.Update)
		case 2:
			m.Delete = new(ReplicatedEntityDelete)
			return consumeMessage(b, m.Delete)
		}
		return 0, nil
	})
}

// ReplicatedEntityReply is the outcome of one command.
type ReplicatedEntityReply struct {
	CommandId    int64
	ClientAction *ClientAction
	SideEffects  []*SideEffect
	StateAction  *ReplicatedEntityStateAction
}

func (m *ReplicatedEntityReply) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	if m.ClientAction != nil {
		b = appendMessage(b, 2, m.ClientAction)
	}
	for _, e := range m.SideEffects {
		b = appendMessage(b, 3, e)
	}
	if m.StateAction != nil {
		b = appendMessage(b, 4, m.StateAction)
	}
	return b
}

func (m *ReplicatedEntityReply) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.CommandId)
		case 2:
			m.ClientAction = new(ClientAction)
			return consumeMessage(b, m.ClientAction)
		case 3:
			e := new(SideEffect)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.SideEffects = append(m.SideEffects, e)
			return n, nil
		case 4:
			m.StateAction = new(ReplicatedEntityStateAction)
			return consumeMessage(b, m.StateAction)
		}
		return 0, nil
	})
}

// ReplicatedEntityStreamedMessage is a push on a streamed command.
type ReplicatedEntityStreamedMessage struct {
	CommandId    int64
	ClientAction *ClientAction
	SideEffects  []*SideEffect
	EndStream    bool
}

func (m *ReplicatedEntityStreamedMessage) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	if m.ClientAction != nil {
		b = appendMessage(b, 2, m.ClientAction)
	}
	for _, e := range m.SideEffects {
		b = appendMessage(b, 3, e)
	}
	b = appendBool(b, 4, m.EndStream)
	return b
}

func (m *ReplicatedEntityStreamedMessage) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.CommandId)
		case 2:
			m.ClientAction = new(ClientAction)
			return consumeMessage(b, m.ClientAction)
		case 3:
			e := new(SideEffect)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.SideEffects = append(m.SideEffects, e)
			return n, nil
		case 4:
			return consumeBool(b, &m.EndStream)
		}
		return 0, nil
	})
}

// ReplicatedEntityStreamCancelledResponse acknowledges a stream cancellation.
type ReplicatedEntityStreamCancelledResponse struct {
	CommandId   int64
	SideEffects []*SideEffect
}

func (m *ReplicatedEntityStreamCancelledResponse) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	for _, e := range m.SideEffects {
		b = appendMessage(b, 2, e)
	}
	return b
}

func (m *ReplicatedEntityStreamCancelledResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.CommandId)
		case 2:
			e := new(SideEffect)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.SideEffects = append(m.SideEffects, e)
			return n, nil
		}
		return 0, nil
	})
}

// ReplicatedEntityStreamOut is an outbound frame.
type ReplicatedEntityStreamOut struct {
	Reply                   *ReplicatedEntityReply
	StreamedMessage         *ReplicatedEntityStreamedMessage
	StreamCancelledResponse *ReplicatedEntityStreamCancelledResponse
	Failure                 *Failure
}

func (m *ReplicatedEntityStreamOut) marshalAppend(b []byte) []byte {
	if m.Reply != nil {
		b = appendMessage(b, 1, m.Reply)
	}
	if m.StreamedMessage != nil {
		b = appendMessage(b, 2, m.StreamedMessage)
	}
	if m.StreamCancelledResponse != nil {
		b = appendMessage(b, 3, m.StreamCancelledResponse)
	}
	if m.Failure != nil {
		b = appendMessage(b, 4, m.Failure)
	}
	return b
}

func (m *ReplicatedEntityStreamOut) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Reply = new(ReplicatedEntityReply)
			return consumeMessage(b, m.Reply)
		case 2:
			m.StreamedMessage = new(ReplicatedEntityStreamedMessage)
			return consumeMessage(b, m.StreamedMessage)
		case 3:
			m.StreamCancelledResponse = new(ReplicatedEntityStreamCancelledResponse)
			return consumeMessage(b, m.StreamCancelledResponse)
		case 4:
			m.Failure = new(Failure)
			return consumeMessage(b, m.Failure)
		}
		return 0, nil
	})
}

// =============================================================================
// REPLICATED ENTITY SERVICE
// =============================================================================

// ReplicatedEntitiesServiceName is the fully-qualified replicated entity
// service name.
const ReplicatedEntitiesServiceName = "kalix.component.replicatedentity.ReplicatedEntities"

// ReplicatedEntitiesServer is implemented by the SDK's replicated entity
// handler.
type ReplicatedEntitiesServer interface {
	Handle(ReplicatedEntities_HandleServer) error
}

// ReplicatedEntities_HandleServer is the server view of one entity stream.
type ReplicatedEntities_HandleServer interface {
	Send(*ReplicatedEntityStreamOut) error
	Recv() (*ReplicatedEntityStreamIn, error)
	grpc.ServerStream
}

type replicatedEntitiesHandleServer struct {
	grpc.ServerStream
}

func (x *replicatedEntitiesHandleServer) Send(m *ReplicatedEntityStreamOut) error {
	return x.ServerStream.SendMsg(m)
}

func (x *replicatedEntitiesHandleServer) Recv() (*ReplicatedEntityStreamIn, error) {
	m := new(ReplicatedEntityStreamIn)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _ReplicatedEntities_Handle_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplicatedEntitiesServer).Handle(&replicatedEntitiesHandleServer{stream})
}

// ReplicatedEntitiesServiceDesc registers the replicated entity service on a
// gRPC server.
var ReplicatedEntitiesServiceDesc = grpc.ServiceDesc{
	ServiceName: ReplicatedEntitiesServiceName,
	HandlerType: (*ReplicatedEntitiesServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Handle",
			Handler:       _ReplicatedEntities_Handle_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "kalix/protocol/replicated_entity.proto",
}
