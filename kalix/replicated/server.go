package replicated

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
	"github.com/lightbend/kalix-go-sdk/kalix/crdt"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// defaultQueueSize bounds the per-entity inbound frame queue.
const defaultQueueSize = 16

// streamedCommand is one registered streamed command awaiting state changes.
type streamedCommand struct {
	ctx      *StreamedContext
	onChange StateChangeHandler
	onCancel StreamCancelHandler
	// skipNext suppresses the notification for the change the registering
	// command itself made; its reply already carries that change.
	skipNext bool
}

// instance is one live entity: id, top-level state, and the streamed commands
// watching it. Mutated only by the stream's command loop.
type instance struct {
	entityID string
	state    crdt.State
	streams  map[int64]*streamedCommand
}

// Server hosts every registered replicated entity.
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

// NewServer creates the replicated entity stream server.
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

// installState sets the top-level state and runs the enrichment hook.
func (s *Server) installState(entity *Entity, inst *instance, state crdt.State) {
	inst.state = state
	if entity.OnStateSet != nil {
		entity.OnStateSet(state, inst.entityID)
	}
}

// Handle implements protocol.ReplicatedEntitiesServer.
func (s *Server) Handle(stream protocol.ReplicatedEntities_HandleServer) error {
	streamID := uuid.NewString()
	s.bus.Publish(&eventbus.StreamStarted{
		ComponentType: string(component.TypeReplicatedEntity),
		StreamId:      streamID,
	})
	err := s.handle(stream, streamID)
	s.bus.Publish(&eventbus.StreamEnded{
		ComponentType: string(component.TypeReplicatedEntity),
		StreamId:      streamID,
		Err:           err,
	})
	return err
}

func (s *Server) handle(stream protocol.ReplicatedEntities_HandleServer, streamID string) error {
	in, err := stream.Recv()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if err := protocol.ValidateReplicatedEntityStreamIn(in, true); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	init := in.Init

	comp := s.registry.GetOfType(init.ServiceName, component.TypeReplicatedEntity)
	if comp == nil {
		return status.Errorf(codes.NotFound, "unknown replicated entity service: %s", init.ServiceName)
	}
	entity, ok := comp.(*Entity)
	if !ok {
		return status.Errorf(codes.Internal, "service %s is not a replicated entity registration", init.ServiceName)
	}

	if err := s.acquire(init.ServiceName, init.EntityId); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	defer s.release(init.ServiceName, init.EntityId)

	inst := &instance{entityID: init.EntityId, streams: make(map[int64]*streamedCommand)}
	if init.Delta != nil {
		if err := s.applyInboundDelta(entity, inst, init.Delta); err != nil {
			return s.unrecoverable(stream, entity, inst, err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("replicated_entity_activated",
			"service_name", init.ServiceName,
			"entity_id", init.EntityId,
			"has_state", inst.state != nil,
			"stream_id", streamID,
		)
	}
	s.bus.Publish(&eventbus.EntityActivated{
		ComponentType: string(component.TypeReplicatedEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})
	defer s.bus.Publish(&eventbus.EntityReleased{
		ComponentType: string(component.TypeReplicatedEntity),
		ServiceName:   init.ServiceName,
		EntityId:      init.EntityId,
	})

	queue := make(chan *protocol.ReplicatedEntityStreamIn, s.queueSize)
	done := make(chan struct{})
	var loopErr error
	go func() {
		defer close(done)
		for in := range queue {
			var outs []*protocol.ReplicatedEntityStreamOut
			switch {
			case in.Delta != nil:
				if err := s.applyInboundDelta(entity, inst, in.Delta); err != nil {
					loopErr = s.unrecoverable(stream, entity, inst, err)
					return
				}
				outs = s.notifyStreams(inst)
			case in.Command != nil:
				out, changed := s.handleCommand(entity, inst, in.Command)
				outs = append(outs, out)
				if changed {
					outs = append(outs, s.notifyStreams(inst)...)
				}
			case in.StreamCancelled != nil:
				outs = append(outs, s.handleStreamCancelled(inst, in.StreamCancelled))
			}
			for _, out := range outs {
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
			s.cancelRemainingStreams(inst)
			if err == io.EOF {
				return loopErr
			}
			return err
		}
		if err := protocol.ValidateReplicatedEntityStreamIn(in, false); err != nil {
			close(queue)
			<-done
			s.cancelRemainingStreams(inst)
			return status.Error(codes.InvalidArgument, err.Error())
		}
		select {
		case queue <- in:
		case <-done:
			s.cancelRemainingStreams(inst)
			return loopErr
		}
	}
}

// cancelRemainingStreams fires the cancel callbacks of streamed commands still
// registered when the entity stream closes. The command loop has drained; no
// further frames reach the proxy.
func (s *Server) cancelRemainingStreams(inst *instance) {
	for id, sc := range inst.streams {
		delete(inst.streams, id)
		if sc.onCancel == nil {
			continue
		}
		s.invokeCancel(sc, inst.state)
	}
}

// unrecoverable reports an entity-fatal error to the proxy and closes the
// stream.
func (s *Server) unrecoverable(stream protocol.ReplicatedEntities_HandleServer, entity *Entity, inst *instance, err error) error {
	if s.logger != nil {
		s.logger.Error("replicated_entity_unrecoverable",
			"service_name", entity.Service,
			"entity_id", inst.entityID,
			"error", err.Error(),
		)
	}
	_ = stream.Send(&protocol.ReplicatedEntityStreamOut{
		Failure: &protocol.Failure{Description: err.Error()},
	})
	return status.Error(codes.Aborted, err.Error())
}

// applyInboundDelta folds a proxy delta into the state, constructing a fresh
// instance of the delta's kind when no state exists yet.
func (s *Server) applyInboundDelta(entity *Entity, inst *instance, delta *protocol.ReplicatedEntityDelta) error {
	if inst.state == nil {
		state, err := crdt.NewStateFromDelta(delta, s.as)
		if err != nil {
			return err
		}
		s.installState(entity, inst, state)
	}
	return inst.state.ApplyDelta(delta)
}

// notifyStreams pushes state changes to every registered streamed command.
func (s *Server) notifyStreams(inst *instance) []*protocol.ReplicatedEntityStreamOut {
	var outs []*protocol.ReplicatedEntityStreamOut
	for id, sc := range inst.streams {
		if sc.skipNext {
			sc.skipNext = false
			continue
		}
		if sc.onChange == nil {
			continue
		}
		sc.ctx.sideFx = nil
		r, failure := component.InvokeCommand(s.logger, "state change handler", nil,
			func() (*reply.Reply, error) { return sc.onChange(sc.ctx, inst.state) })

		var action *protocol.ClientAction
		switch {
		case failure != nil:
			action = reply.FailureAction(id, failure)
			sc.ctx.ended = true
		case r != nil:
			var err error
			action, err = reply.BuildClientAction(s.as.Encode, nil, r)
			if err != nil {
				action = reply.FailureAction(id, reply.NewContextFailure(err.Error()))
				sc.ctx.ended = true
			}
		}

		if action == nil && !sc.ctx.ended {
			continue
		}
		outs = append(outs, &protocol.ReplicatedEntityStreamOut{
			StreamedMessage: &protocol.ReplicatedEntityStreamedMessage{
				CommandId:    id,
				ClientAction: action,
				SideEffects:  effect.SideEffects(reply.CombineEffects(sc.ctx.sideFx, r)),
				EndStream:    sc.ctx.ended,
			},
		})
		if sc.ctx.ended {
			delete(inst.streams, id)
		}
	}
	return outs
}

// invokeCancel runs one cancel callback; a panic is contained to the callback.
func (s *Server) invokeCancel(sc *streamedCommand, state crdt.State) {
	defer func() {
		if p := recover(); p != nil {
			if s.logger != nil {
				s.logger.Error("stream_cancel_handler_panicked",
					"command_id", sc.ctx.CommandID,
					"panic", p,
					"stack", string(debug.Stack()),
				)
			}
		}
	}()
	sc.onCancel(sc.ctx, state)
}

// handleStreamCancelled runs the cancel callback of a streamed command and
// acknowledges the cancellation.
func (s *Server) handleStreamCancelled(inst *instance, cancelled *protocol.StreamCancelled) *protocol.ReplicatedEntityStreamOut {
	response := &protocol.ReplicatedEntityStreamCancelledResponse{CommandId: cancelled.Id}
	if sc, ok := inst.streams[cancelled.Id]; ok {
		delete(inst.streams, cancelled.Id)
		if sc.onCancel != nil {
			sc.ctx.sideFx = nil
			s.invokeCancel(sc, inst.state)
			response.SideEffects = effect.SideEffects(sc.ctx.sideFx)
		}
	}
	return &protocol.ReplicatedEntityStreamOut{StreamCancelledResponse: response}
}

func (s *Server) handleCommand(entity *Entity, inst *instance, cmd *protocol.Command) (*protocol.ReplicatedEntityStreamOut, bool) {
	start := time.Now()
	out, result, changed := s.runCommand(entity, inst, cmd)
	s.bus.Publish(&eventbus.CommandCompleted{
		ComponentType: string(component.TypeReplicatedEntity),
		ServiceName:   entity.Service,
		CommandName:   cmd.Name,
		Status:        result,
		DurationMs:    time.Since(start).Milliseconds(),
	})
	return out, changed
}

func (s *Server) runCommand(entity *Entity, inst *instance, cmd *protocol.Command) (*protocol.ReplicatedEntityStreamOut, string, bool) {
	ctx := &CommandContext{
		EntityID:    inst.entityID,
		CommandName: cmd.Name,
		CommandID:   cmd.Id,
		Metadata:    reply.MetadataFromProtocol(cmd.Metadata),
		Streamed:    cmd.Streamed,
		srv:         s,
		entity:      entity,
		inst:        inst,
	}

	handler, ok := entity.CommandHandlers[cmd.Name]
	if !ok {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("unknown command %s on %s", cmd.Name, entity.Service))), "failure", false
	}

	payload, err := s.as.Decode(cmd.Payload)
	if err != nil {
		return s.failureFrame(cmd, reply.NewContextFailure(
			fmt.Sprintf("failed to decode command payload: %v", err))), "failure", false
	}

	r, failure := component.InvokeCommand(s.logger, "replicated entity command "+cmd.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return handler(ctx, payload) })
	if failure != nil {
		// Local mutations made before the failure are not rolled back; they
		// were never flushed, so the outbound delta of the next successful
		// command carries them. This matches the source behavior.
		return s.failureFrame(cmd, failure), "failure", false
	}

	action, err := reply.BuildClientAction(s.as.Encode, ctx.forward, r)
	if err != nil {
		return s.failureFrame(cmd, reply.NewContextFailure(err.Error())), "failure", false
	}

	// Outbound delta: flush the state's accumulated changes.
	var stateAction *protocol.ReplicatedEntityStateAction
	changed := false
	switch {
	case ctx.deleted:
		stateAction = &protocol.ReplicatedEntityStateAction{Delete: &protocol.ReplicatedEntityDelete{}}
		inst.state = nil
		changed = true
	case inst.state != nil:
		if delta := inst.state.GetAndResetDelta(false); delta != nil {
			stateAction = &protocol.ReplicatedEntityStateAction{Update: delta}
			changed = true
		}
	}

	if cmd.Streamed && (ctx.onChange != nil || ctx.onCancel != nil) {
		inst.streams[cmd.Id] = &streamedCommand{
			ctx:      &StreamedContext{EntityID: inst.entityID, CommandID: cmd.Id, srv: s},
			onChange: ctx.onChange,
			onCancel: ctx.onCancel,
			skipNext: changed,
		}
	}

	return &protocol.ReplicatedEntityStreamOut{
		Reply: &protocol.ReplicatedEntityReply{
			CommandId:    cmd.Id,
			ClientAction: action,
			SideEffects:  effect.SideEffects(reply.CombineEffects(ctx.sideFx, r)),
			StateAction:  stateAction,
		},
	}, "success", changed
}

// failureFrame emits a recoverable failure reply.
func (s *Server) failureFrame(cmd *protocol.Command, f *reply.ContextFailure) *protocol.ReplicatedEntityStreamOut {
	if s.logger != nil {
		s.logger.Warn("replicated_entity_command_failed",
			"command", cmd.Name,
			"command_id", cmd.Id,
			"description", f.Description(),
		)
	}
	return &protocol.ReplicatedEntityStreamOut{
		Reply: &protocol.ReplicatedEntityReply{
			CommandId:    cmd.Id,
			ClientAction: reply.FailureAction(cmd.Id, f),
		},
	}
}
