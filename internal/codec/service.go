package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/run"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

// #region wire-codec
// CodecName is the gRPC content subtype of the schedule service.
const CodecName = "stimwire"

// wireCodec plugs the hand-written messages into gRPC.
type wireCodec struct{}

func (wireCodec) Name() string { return CodecName }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("%s: cannot marshal %T", CodecName, v)
	}
	return m.marshal(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("%s: cannot unmarshal into %T", CodecName, v)
	}
	return m.unmarshal(data)
}

func init() {
	encoding.RegisterCodec(wireCodec{})
}
// #endregion wire-codec

// #region service-desc
const compileMethod = "/stimsched.ScheduleService/Compile"

// ScheduleServer is the server side of stimsched.ScheduleService.
type ScheduleServer interface {
	Compile(context.Context, *CompileRequest) (*CompileResponse, error)
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CompileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScheduleServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: compileMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScheduleServer).Compile(ctx, req.(*CompileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes stimsched.ScheduleService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stimsched.ScheduleService",
	HandlerType: (*ScheduleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stimsched.proto",
}

// NewServer returns a gRPC server that speaks the schedule wire codec.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(append(opts, grpc.ForceServerCodec(wireCodec{}))...)
}

// Register attaches srv to s.
func Register(s *grpc.Server, srv ScheduleServer) {
	s.RegisterService(&ServiceDesc, srv)
}
// #endregion service-desc

// #region service
// Service compiles definitions on behalf of remote renderers.
type Service struct {
	device experiment.Device
	store  *state.Store
	log    *slog.Logger
}

// NewService returns a Service compiling for dev. store may be nil.
func NewService(dev experiment.Device, store *state.Store) *Service {
	return &Service{device: dev, store: store, log: logging.New("codec")}
}

// Compile decodes the requested definition, compiles every section and
// returns the scenes in section order.
func (s *Service) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	var test *experiment.Test
	var err error
	switch {
	case req.Catalog != "" && len(req.Definition) > 0:
		return nil, status.Error(codes.InvalidArgument, "set either a definition or a catalog name, not both")
	case req.Catalog != "":
		if _, lookup := catalog.Source(req.Catalog); lookup != nil {
			return nil, status.Error(codes.NotFound, lookup.Error())
		}
		test, err = catalog.Load(req.Catalog)
	case len(req.Definition) > 0:
		test, err = experiment.Decode(req.Definition)
	default:
		return nil, status.Error(codes.InvalidArgument, "a definition or a catalog name is required")
	}
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	dev := s.device
	if req.Device != nil {
		dev = *req.Device
	}
	r, err := run.Compile(ctx, test, dev, run.Options{Seeds: req.Seeds, Store: s.store})
	if err != nil {
		return nil, compileStatus(err)
	}

	resp := &CompileResponse{RunID: r.ID, Test: test.Name, Roots: r.Roots}
	for _, sr := range r.Sections() {
		for _, sc := range sr.Scenes {
			resp.Scenes = append(resp.Scenes, Export(sr.Section.Name, sc))
		}
	}
	s.log.Info("compiled over rpc", "run_id", r.ID, "test", test.Name, "scenes", len(resp.Scenes))
	return resp, nil
}

func compileStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, experiment.ErrCapacity):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, experiment.ErrDefinition):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
// #endregion service

// #region client
// Client calls a remote ScheduleService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Compile asks the service to compile req.
func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	out := new(CompileResponse)
	if err := c.conn.Invoke(ctx, compileMethod, req, out, grpc.ForceCodec(wireCodec{})); err != nil {
		return nil, fmt.Errorf("compile rpc: %w", err)
	}
	return out, nil
}
// #endregion client
