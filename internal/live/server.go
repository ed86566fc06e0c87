package live

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"stockmind/internal/domain"
)

const watchUnitsMethod = "/stockmind.v1.Units/WatchUnits"

// unitsServer is the handler type of the Units service.
type unitsServer interface {
	WatchUnits(req *structpb.Struct, stream grpc.ServerStream) error
}

var unitsServiceDesc = grpc.ServiceDesc{
	ServiceName: "stockmind.v1.Units",
	HandlerType: (*unitsServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchUnits",
		Handler:       watchUnitsHandler,
		ServerStreams: true,
	}},
	Metadata: "stockmind/v1/units.proto",
}

func watchUnitsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(unitsServer).WatchUnits(req, stream)
}

// Server implements the WatchUnits gRPC endpoint.
type Server struct {
	board *Board
	log   *slog.Logger
}

// NewServer creates a gRPC server backed by the given Board.
func NewServer(board *Board, log *slog.Logger) *Server {
	return &Server{board: board, log: log.With("component", "grpc")}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&unitsServiceDesc, s)
}

// WatchUnits sends a snapshot of all units, then streams changes as they
// happen. The request may carry a "kind" field ("agent" or "workflow") to
// filter. The stream ends when the client disconnects.
func (s *Server) WatchUnits(req *structpb.Struct, stream grpc.ServerStream) error {
	kind := domain.UnitKind(req.GetFields()["kind"].GetStringValue())
	want := func(u domain.Unit) bool { return kind == "" || u.Kind == kind }

	send := func(u domain.Unit) error {
		msg, err := UnitToStruct(u)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	}

	snapshot, subID, ch := s.board.SnapshotAndSubscribe(1024)
	defer s.board.Unsubscribe(subID)

	for _, u := range snapshot {
		if !want(u) {
			continue
		}
		if err := send(u); err != nil {
			return err
		}
	}

	s.log.Info("grpc client subscribed", "subID", subID, "kind", kind)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "subID", subID)
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if !want(evt.Unit) {
				continue
			}
			if err := send(evt.Unit); err != nil {
				return err
			}
		}
	}
}
