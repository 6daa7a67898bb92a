package eventsourced

import (
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// defaultQueueSize bounds the per-entity inbound frame queue.
const defaultQueueSize = 16

// instance is one live entity: id, in-memory state, journal sequence and the
// events applied since the last snapshot. Mutated only by the stream's command
// loop.
type instance struct {
	entityID            string
	state               any
	sequence            int64
	eventsSinceSnapshot int32
}

// Server hosts every registered event sourced entity.
type Server struct {
	logger    Logger
	registry  *component.Registry
	as        *anysupport.AnySupport
	effects   *effect.Serializer
	bus       *eventbus.Bus
	queueSize int

	active map[string]struct{}
	mu     sync.Mutex
}

// NewServer creates the event sourced stream server.
func NewServer(logger Logger, registry *component.Registry, as *anysupport.AnySupport, effects *effect.Serializer, bus *eventbus.Bus) *Server {
	return &Server{
		logger:    logger,
		registry:  registry,
		as:        as,
		effects:   effects,
		bus:       bus,
		queueSize: defaultQueueSize,
		active:    make(map[string]struct{}),
	}
}

func (s *Server) acquire(serviceName, entityID string) error {
	key := serviceName + "/" + entityID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[key]; exists {
		return fmt.Errorf("entity %s is already active", key)
	}
	s.active[key] = struct{}{}
	return nil
}

func (s *Server) release(serviceName, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, serviceName+"/"+entityID)
}

// Handle implements protocol.EventSourcedServer.
func (s *Server) Handle(stream protocol.EventSourced_HandleServer) error {
	streamID := uuid.NewString()
	s.bus.Publish(&eventbus.StreamStarted{
		ComponentType: string(component.TypeEventSourcedEntity),
		StreamId:      streamID,
	})
	err := s.handle(stream, streamID)
	s.bus.Publish(&eventbus.StreamEnded{
		ComponentType: string(component.TypeEventSourcedEntity),
		StreamId:      streamID,
		Err:           err,
	})
	return err
}

func (s *Server) handle(stream protocol.EventSourced_HandleServer, streamID string) error {
	in, err := stream.Recv()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if err := protocol.ValidateEventSourcedStreamIn(in, true); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	init := in.Init

	comp := s.registry.GetOfType(init.ServiceName, component.TypeEventSourcedEntity)
	if comp == nil {
		return status.Errorf(codes.NotFound, "unknown event sourced service: %s", init.ServiceName)
	}
	entity, ok := comp.(*Entity)
	if !ok {
		return status.Errorf(codes.Internal, "service %s is not an event sourced registration", init.ServiceName)
	}

	if err := s.acquire(init.ServiceName, init.EntityId); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	defer s.release(init.ServiceName, init.EntityId)

	inst := &instance{entityID: init.EntityId, state: entity.initialState(init.EntityId)}
	if init.Snapshot != nil && init.Snapshot.Snapshot != nil {
		if err := s.applySnapshot(entity, inst, init.Snapshot); err != nil {
			return s.unrecoverable(stream, entity, inst, err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("event_sourced_entity_activated",
			"service_name", init.ServiceName,
			"entity_id", init.EntityId,
			"sequence", inst.sequence,
			"stream_id", streamID,
		)
	}
	s.bus.Publish(&eventbus.EntityActivated{
		ComponentType: string(component.TypeEventSourcedEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})
	defer s.bus.Publish(&eventbus.EntityReleased{
		ComponentType: string(component.TypeEventSourcedEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})

	queue := make(chan *protocol.EventSourcedStreamIn, s.queueSize)
	done := make(chan struct{})
	var loopErr error
	go func() {
		defer close(done)
		for in := range queue {
			switch {
			case in.Event != nil:
				// Replay: apply the journal event at its own sequence. An
				// unknown event type is unrecoverable for this instance.
				if err := s.applyEvent(entity, inst, in.Event.Payload, in.Event.Sequence); err != nil {
					loopErr = s.unrecoverable(stream, entity, inst, err)
					return
				}
				inst.sequence = in.Event.Sequence
			case in.Command != nil:
				out := s.handleCommand(entity, inst, in.Command)
				if err := stream.Send(out); err != nil {
					loopErr = err
					return
				}
			}
		}
	}()

	for {
		in, err := stream.Recv()
		if err != nil {
			close(queue)
			<-done
			if err == io.EOF {
				return loopErr
			}
			return err
		}
		if err := protocol.ValidateEventSourcedStreamIn(in, false); err != nil {
			close(queue)
			<-done
			return status.Error(codes.InvalidArgument, err.Error())
		}
		select {
		case queue <- in:
		case <-done:
			return loopErr
		}
	}
}

// unrecoverable reports an entity-fatal error to the proxy and closes the
// stream.
func (s *Server) unrecoverable(stream protocol.EventSourced_HandleServer, entity *Entity, inst *instance, err error) error {
	if s.logger != nil {
		s.logger.Error("event_sourced_entity_unrecoverable",
			"service_name", entity.Service,
			"entity_id", inst.entityID,
			"error", err.Error(),
		)
	}
	_ = stream.Send(&protocol.EventSourcedStreamOut{
		Failure: &protocol.Failure{Description: err.Error()},
	})
	return status.Error(codes.Aborted, err.Error())
}

// applySnapshot installs the snapshot state and sequence.
func (s *Server) applySnapshot(entity *Entity, inst *instance, snapshot *protocol.EventSourcedSnapshot) error {
	decoded, err := s.as.Decode(snapshot.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot at sequence %d: %w", snapshot.SnapshotSequence, err)
	}
	state := decoded
	if entity.SnapshotHandler != nil {
		state, err = entity.SnapshotHandler(decoded)
		if err != nil {
			return fmt.Errorf("snapshot handler failed at sequence %d: %w", snapshot.SnapshotSequence, err)
		}
	}
	inst.state = state
	inst.sequence = snapshot.SnapshotSequence
	return nil
}

// applyEvent feeds one event through its handler, updating the state. The
// caller owns the sequence bookkeeping. A panicking event handler is an error
// here. During replay the caller treats it as unrecoverable for this instance;
// during Emit it fails the current command.
func (s *Server) applyEvent(entity *Entity, inst *instance, payload *protocol.Any, sequence int64) (err error) {
	name := anysupport.UnqualifiedNameOf(payload.TypeUrl)
	handler, ok := entity.EventHandlers[name]
	if !ok {
		return unknownEventError(entity.Service, name)
	}
	event, err := s.as.Decode(payload)
	if err != nil {
		return fmt.Errorf("failed to decode event %s: %w", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if s.logger != nil {
				s.logger.Error("event_handler_panicked",
					"event", name,
					"sequence", sequence,
					"panic", p,
					"stack", string(debug.Stack()),
				)
			}
			err = fmt.Errorf("event handler %s panicked: %v", name, p)
		}
	}()

	ctx := &EventContext{EntityID: inst.entityID, SequenceNumber: sequence}
	next, err := handler(ctx, event, inst.state)
	if err != nil {
		return err
	}
	inst.state = next
	inst.eventsSinceSnapshot++
	return nil
}

func (s *Server) handleCommand(entity *Entity, inst *instance, cmd *protocol.Command) *protocol.EventSourcedStreamOut {
	start := time.Now()
	out, result := s.runCommand(entity, inst, cmd)
	s.bus.Publish(&eventbus.CommandCompleted{
		ComponentType: string(component.TypeEventSourcedEntity),
		ServiceName:   entity.Service,
		CommandName:   cmd.Name,
		Status:        result,
		DurationMs:    time.Since(start).Milliseconds(),
	})
	return out
}

func (s *Server) runCommand(entity *Entity, inst *instance, cmd *protocol.Command) (*protocol.EventSourcedStreamOut, string) {
	ctx := &CommandContext{
		EntityID:    inst.entityID,
		CommandName: cmd.Name,
		CommandID:   cmd.Id,
		Metadata:    reply.MetadataFromProtocol(cmd.Metadata),
		srv:         s,
		entity:      entity,
		inst:        inst,
	}

	// Uncommitted emits are discarded on failure by restoring this.
	prevState := inst.state
	prevSequence := inst.sequence
	prevSinceSnapshot := inst.eventsSinceSnapshot

	rollback := func() {
		inst.state = prevState
		inst.sequence = prevSequence
		inst.eventsSinceSnapshot = prevSinceSnapshot
	}

	handler, ok := entity.CommandHandlers[cmd.Name]
	if !ok {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("unknown command %s on %s", cmd.Name, entity.Service))), "failure"
	}

	payload, err := s.as.Decode(cmd.Payload)
	if err != nil {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("failed to decode command payload: %v", err))), "failure"
	}

	r, failure := component.InvokeCommand(s.logger, "event sourced command "+cmd.Name,
		func() *reply.ContextFailure {
			if ctx.failure != nil {
				return ctx.failure
			}
			// A swallowed emit error still fails the command.
			if ctx.emitErr != nil {
				return reply.NewContextFailure(ctx.emitErr.Error())
			}
			return nil
		},
		func() (*reply.Reply, error) { return handler(ctx, payload) })
	if failure != nil {
		rollback()
		return s.failureFrame(cmd, failure), "failure"
	}

	action, err := reply.BuildClientAction(s.as.Encode, ctx.forward, r)
	if err != nil {
		rollback()
		return s.failureFrame(cmd, reply.NewContextFailure(err.Error())), "failure"
	}

	out := &protocol.EventSourcedReply{
		CommandId:    cmd.Id,
		ClientAction: action,
		SideEffects:  effect.SideEffects(reply.CombineEffects(ctx.sideFx, r)),
	}
	for _, ev := range ctx.emitted {
		out.Events = append(out.Events, ev.payload)
	}

	// Snapshot when this command's emits crossed the interval.
	if every := entity.snapshotEvery(); every > 0 && len(ctx.emitted) > 0 && inst.eventsSinceSnapshot >= every {
		snapshot, err := s.as.Encode(inst.state)
		if err != nil {
			rollback()
			return s.failureFrame(cmd, reply.NewContextFailure(
				fmt.Sprintf("failed to encode snapshot: %v", err))), "failure"
		}
		out.Snapshot = snapshot
		inst.eventsSinceSnapshot = 0
	}

	return &protocol.EventSourcedStreamOut{Reply: out}, "success"
}

// failureFrame emits a recoverable failure reply.
func (s *Server) failureFrame(cmd *protocol.Command, f *reply.ContextFailure) *protocol.EventSourcedStreamOut {
	if s.logger != nil {
		s.logger.Warn("event_sourced_command_failed",
			"command", cmd.Name,
			"command_id", cmd.Id,
			"description", f.Description(),
		)
	}
	return &protocol.EventSourcedStreamOut{
		Reply: &protocol.EventSourcedReply{
			CommandId:    cmd.Id,
			ClientAction: reply.FailureAction(cmd.Id, f),
		},
	}
}
