package action

import (
	"context"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// Server hosts every registered action.
type Server struct {
	logger   Logger
	registry *component.Registry
	as       *anysupport.AnySupport
	effects  *effect.Serializer
	bus      *eventbus.Bus
}

// NewServer creates the action server.
func NewServer(logger Logger, registry *component.Registry, as *anysupport.AnySupport, effects *effect.Serializer, bus *eventbus.Bus) *Server {
	return &Server{
		logger:   logger,
		registry: registry,
		as:       as,
		effects:  effects,
		bus:      bus,
	}
}

// lookup resolves an action registration for a command frame.
func (s *Server) lookup(cmd *protocol.ActionCommand) (*Action, error) {
	comp := s.registry.GetOfType(cmd.ServiceName, component.TypeAction)
	if comp == nil {
		return nil, status.Errorf(codes.NotFound, "unknown action service: %s", cmd.ServiceName)
	}
	action, ok := comp.(*Action)
	if !ok {
		return nil, status.Errorf(codes.Internal, "service %s is not an action registration", cmd.ServiceName)
	}
	return action, nil
}

// newContext builds the handler context for one command.
func (s *Server) newContext(grpcCtx context.Context, cmd *protocol.ActionCommand, write func(*reply.Reply) error) *Context {
	return &Context{
		ServiceName: cmd.ServiceName,
		CommandName: cmd.Name,
		Metadata:    reply.MetadataFromProtocol(cmd.Metadata),
		grpcCtx:     grpcCtx,
		effects:     s.effects,
		write:       write,
	}
}

// response converts a resolved command outcome to the wire form.
func (s *Server) response(ctx *Context, r *reply.Reply, failure *reply.ContextFailure) *protocol.ActionResponse {
	if failure != nil {
		return &protocol.ActionResponse{
			Failure: &protocol.Failure{
				Description:    failure.Description(),
				GrpcStatusCode: failure.GrpcStatusCode(),
			},
			SideEffects: effect.SideEffects(ctx.sideFx),
		}
	}
	action, buildErr := reply.BuildClientAction(s.as.Encode, ctx.forward, r)
	if buildErr != nil {
		return &protocol.ActionResponse{
			Failure:     &protocol.Failure{Description: buildErr.Error()},
			SideEffects: effect.SideEffects(ctx.sideFx),
		}
	}
	out := &protocol.ActionResponse{
		SideEffects: effect.SideEffects(reply.CombineEffects(ctx.sideFx, r)),
	}
	if action != nil {
		out.Reply = action.Reply
		out.Forward = action.Forward
	}
	return out
}

func (s *Server) observe(cmd *protocol.ActionCommand, start time.Time, out *protocol.ActionResponse) *protocol.ActionResponse {
	result := "success"
	if out.Failure != nil {
		result = "failure"
	}
	s.bus.Publish(&eventbus.CommandCompleted{
		ComponentType: string(component.TypeAction),
		ServiceName:   cmd.ServiceName,
		CommandName:   cmd.Name,
		Status:        result,
		DurationMs:    time.Since(start).Milliseconds(),
	})
	return out
}

// =============================================================================
// CALL SHAPES
// =============================================================================

// HandleUnary implements protocol.ActionsServer.
func (s *Server) HandleUnary(grpcCtx context.Context, in *protocol.ActionCommand) (*protocol.ActionResponse, error) {
	start := time.Now()
	action, err := s.lookup(in)
	if err != nil {
		return nil, err
	}
	ctx := s.newContext(grpcCtx, in, nil)

	handler, ok := action.UnaryHandlers[in.Name]
	if !ok {
		return s.observe(in, start, s.response(ctx, nil,
			unknownCommandError(in.ServiceName, in.Name, "unary"))), nil
	}
	payload, err := s.as.Decode(in.Payload)
	if err != nil {
		return s.observe(in, start, s.response(ctx, nil, reply.NewContextFailure(err.Error()))), nil
	}
	r, failure := component.InvokeCommand(s.logger, "action command "+in.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return handler(ctx, payload) })
	return s.observe(in, start, s.response(ctx, r, failure)), nil
}

// HandleStreamedIn implements protocol.ActionsServer.
func (s *Server) HandleStreamedIn(stream protocol.Actions_HandleStreamedInServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	start := time.Now()
	action, err := s.lookup(first)
	if err != nil {
		return err
	}
	ctx := s.newContext(stream.Context(), first, nil)

	handler, ok := action.StreamedInHandlers[first.Name]
	if !ok {
		return stream.SendAndClose(s.observe(first, start, s.response(ctx, nil,
			unknownCommandError(first.ServiceName, first.Name, "streamed-in"))))
	}

	// The first frame may carry a payload; later frames always do.
	pending := first.Payload
	recv := func() (any, error) {
		if pending != nil {
			payload := pending
			pending = nil
			return s.as.Decode(payload)
		}
		in, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		return s.as.Decode(in.Payload)
	}

	r, failure := component.InvokeCommand(s.logger, "action command "+first.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return handler(ctx, recv) })
	return stream.SendAndClose(s.observe(first, start, s.response(ctx, r, failure)))
}

// HandleStreamedOut implements protocol.ActionsServer.
func (s *Server) HandleStreamedOut(in *protocol.ActionCommand, stream protocol.Actions_HandleStreamedOutServer) error {
	start := time.Now()
	action, err := s.lookup(in)
	if err != nil {
		return err
	}

	write := func(r *reply.Reply) error {
		ctx := s.newContext(stream.Context(), in, nil)
		return stream.Send(s.response(ctx, r, nil))
	}
	ctx := s.newContext(stream.Context(), in, write)

	handler, ok := action.StreamedOutHandlers[in.Name]
	if !ok {
		return stream.Send(s.observe(in, start, s.response(ctx, nil,
			unknownCommandError(in.ServiceName, in.Name, "streamed-out"))))
	}
	payload, err := s.as.Decode(in.Payload)
	if err != nil {
		return stream.Send(s.observe(in, start, s.response(ctx, nil, reply.NewContextFailure(err.Error()))))
	}

	_, failure := component.InvokeCommand(s.logger, "action command "+in.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return nil, handler(ctx, payload) })
	if failure != nil {
		return stream.Send(s.observe(in, start, s.response(ctx, nil, failure)))
	}
	s.observe(in, start, &protocol.ActionResponse{})
	return nil
}

// HandleStreamed implements protocol.ActionsServer.
func (s *Server) HandleStreamed(stream protocol.Actions_HandleStreamedServer) error {
	first, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	start := time.Now()
	action, err := s.lookup(first)
	if err != nil {
		return err
	}

	write := func(r *reply.Reply) error {
		ctx := s.newContext(stream.Context(), first, nil)
		return stream.Send(s.response(ctx, r, nil))
	}
	ctx := s.newContext(stream.Context(), first, write)

	handler, ok := action.StreamedHandlers[first.Name]
	if !ok {
		return stream.Send(s.observe(first, start, s.response(ctx, nil,
			unknownCommandError(first.ServiceName, first.Name, "streamed"))))
	}

	pending := first.Payload
	recv := func() (any, error) {
		if pending != nil {
			payload := pending
			pending = nil
			return s.as.Decode(payload)
		}
		in, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		return s.as.Decode(in.Payload)
	}

	_, failure := component.InvokeCommand(s.logger, "action command "+first.Name,
		func() *reply.ContextFailure { return ctx.failure },
		func() (*reply.Reply, error) { return nil, handler(ctx, recv) })
	if failure != nil {
		return stream.Send(s.observe(first, start, s.response(ctx, nil, failure)))
	}
	s.observe(first, start, &protocol.ActionResponse{})
	return nil
}
