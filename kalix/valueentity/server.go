package valueentity

import (
	"fmt"
	"io"
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

// defaultQueueSize bounds the per-entity inbound command queue.
const defaultQueueSize = 16

// instance is one live entity: its id and in-memory state. Mutated only by the
// stream's command loop.
type instance struct {
	entityID string
	state    any
}

// Server hosts every registered value entity. One stream carries one entity
// instance; commands on a stream are processed in arrival order by a dedicated
// command loop.
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

// NewServer creates the value entity stream server.
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

// acquire enforces the single-instance-per-entity-id invariant.
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

// Handle implements protocol.ValueEntitiesServer.
func (s *Server) Handle(stream protocol.ValueEntities_HandleServer) error {
	streamID := uuid.NewString()
	s.bus.Publish(&eventbus.StreamStarted{
		ComponentType: string(component.TypeValueEntity),
		StreamId:      streamID,
	})
	err := s.handle(stream, streamID)
	s.bus.Publish(&eventbus.StreamEnded{
		ComponentType: string(component.TypeValueEntity),
		StreamId:      streamID,
		Err:           err,
	})
	return err
}

func (s *Server) handle(stream protocol.ValueEntities_HandleServer, streamID string) error {
	in, err := stream.Recv()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if err := protocol.ValidateValueEntityStreamIn(in, true); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	init := in.Init

	comp := s.registry.GetOfType(init.ServiceName, component.TypeValueEntity)
	if comp == nil {
		return status.Errorf(codes.NotFound, "unknown value entity service: %s", init.ServiceName)
	}
	entity, ok := comp.(*Entity)
	if !ok {
		return status.Errorf(codes.Internal, "service %s is not a value entity registration", init.ServiceName)
	}

	if err := s.acquire(init.ServiceName, init.EntityId); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	defer s.release(init.ServiceName, init.EntityId)

	inst := &instance{entityID: init.EntityId}
	if init.State != nil && init.State.Value != nil {
		state, err := s.as.Decode(init.State.Value)
		if err != nil {
			return status.Errorf(codes.Internal, "failed to decode state of %s/%s: %v", init.ServiceName, init.EntityId, err)
		}
		inst.state = state
	} else {
		inst.state = entity.initialState(init.EntityId)
	}

	if s.logger != nil {
		s.logger.Debug("value_entity_activated",
			"service_name", init.ServiceName,
			"entity_id", init.EntityId,
			"stream_id", streamID,
		)
	}
	s.bus.Publish(&eventbus.EntityActivated{
		ComponentType: string(component.TypeValueEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})
	defer s.bus.Publish(&eventbus.EntityReleased{
		ComponentType: string(component.TypeValueEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})

	queue := make(chan *protocol.Command, s.queueSize)
	done := make(chan struct{})
	var sendErr error
	go func() {
		defer close(done)
		for cmd := range queue {
			out := s.handleCommand(entity, inst, cmd)
			if err := stream.Send(out); err != nil {
				sendErr = err
				return
			}
		}
	}()

	for {
		in, err := stream.Recv()
		if err != nil {
			close(queue)
			<-done
			if err == io.EOF {
				return sendErr
			}
			return err
		}
		if err := protocol.ValidateValueEntityStreamIn(in, false); err != nil {
			close(queue)
			<-done
			return status.Error(codes.InvalidArgument, err.Error())
		}
		select {
		case queue <- in.Command:
		case <-done:
			return sendErr
		}
	}
}

// handleCommand runs one command through the user handler and produces the
// reply frame. Failures are recoverable: the instance continues.
func (s *Server) handleCommand(entity *Entity, inst *instance, cmd *protocol.Command) *protocol.ValueEntityStreamOut {
	start := time.Now()
	out, result := s.runCommand(entity, inst, cmd)
	s.bus.Publish(&eventbus.CommandCompleted{
		ComponentType: string(component.TypeValueEntity),
		ServiceName:   entity.Service,
		CommandName:   cmd.Name,
		Status:        result,
		DurationMs:    time.Since(start).Milliseconds(),
	})
	return out
}

func (s *Server) runCommand(entity *Entity, inst *instance, cmd *protocol.Command) (*protocol.ValueEntityStreamOut, string) {
	ctx := &CommandContext{
		EntityID:    inst.entityID,
		CommandName: cmd.Name,
		CommandID:   cmd.Id,
		Metadata:    reply.MetadataFromProtocol(cmd.Metadata),
		State:       inst.state,
		effects:     s.effects,
	}

	handler, ok := entity.Handlers[cmd.Name]
	if !ok {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("unknown command %s on %s", cmd.Name, entity.Service))), "failure"
	}

	payload, err := s.as.Decode(cmd.Payload)
	if err != nil {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("failed to decode command payload: %v", err))), "failure"
	}

	r, failure := component.InvokeCommand(s.logger, "value entity command "+cmd.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return handler(ctx, payload) })
	if failure != nil {
		return s.failureFrame(cmd, failure), "failure"
	}

	action, err := reply.BuildClientAction(s.as.Encode, ctx.forward, r)
	if err != nil {
		return s.failureFrame(cmd, reply.NewContextFailure(err.Error())), "failure"
	}

	// State changes apply only on the success path, after the handler ran.
	var stateAction *protocol.ValueEntityStateAction
	switch {
	case ctx.deleted:
		stateAction = &protocol.ValueEntityStateAction{Delete: &protocol.ValueEntityDelete{}}
		inst.state = entity.initialState(inst.entityID)
	case ctx.updated:
		encoded, err := s.as.Encode(ctx.newState)
		if err != nil {
			return s.failureFrame(cmd, reply.NewContextFailure(
				fmt.Sprintf("failed to encode updated state: %v", err))), "failure"
		}
		stateAction = &protocol.ValueEntityStateAction{Update: &protocol.ValueEntityUpdate{Value: encoded}}
		inst.state = ctx.newState
	}

	return &protocol.ValueEntityStreamOut{
		Reply: &protocol.ValueEntityReply{
			CommandId:    cmd.Id,
			ClientAction: action,
			SideEffects:  effect.SideEffects(reply.CombineEffects(ctx.sideFx, r)),
			StateAction:  stateAction,
		},
	}, "success"
}

// failureFrame emits a recoverable failure reply; state changes are discarded.
func (s *Server) failureFrame(cmd *protocol.Command, f *reply.ContextFailure) *protocol.ValueEntityStreamOut {
	if s.logger != nil {
		s.logger.Warn("value_entity_command_failed",
			"command", cmd.Name,
			"command_id", cmd.Id,
			"description", f.Description(),
		)
	}
	return &protocol.ValueEntityStreamOut{
		Reply: &protocol.ValueEntityReply{
			CommandId:    cmd.Id,
			ClientAction: reply.FailureAction(cmd.Id, f),
		},
	}
}
