package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "nupi.stt.v1.SpeechToTextService"

	// StreamTranscriptionMethod is the full method name of the streaming RPC.
	StreamTranscriptionMethod = "/" + ServiceName + "/StreamTranscription"
)

// SpeechToTextServiceServer is implemented by the adapter.
type SpeechToTextServiceServer interface {
	StreamTranscription(SpeechToTextService_StreamTranscriptionServer) error
	mustEmbedUnimplementedSpeechToTextServiceServer()
}

type SpeechToTextService_StreamTranscriptionServer = grpc.BidiStreamingServer[StreamTranscriptionRequest, Transcript]

type SpeechToTextService_StreamTranscriptionClient = grpc.BidiStreamingClient[StreamTranscriptionRequest, Transcript]

// UnimplementedSpeechToTextServiceServer must be embedded by implementations.
type UnimplementedSpeechToTextServiceServer struct{}

func (UnimplementedSpeechToTextServiceServer) StreamTranscription(SpeechToTextService_StreamTranscriptionServer) error {
	return status.Error(codes.Unimplemented, "method StreamTranscription not implemented")
}

func (UnimplementedSpeechToTextServiceServer) mustEmbedUnimplementedSpeechToTextServiceServer() {}

// RegisterSpeechToTextServiceServer registers srv on s.
func RegisterSpeechToTextServiceServer(s grpc.ServiceRegistrar, srv SpeechToTextServiceServer) {
	s.RegisterService(&SpeechToTextService_ServiceDesc, srv)
}

func streamTranscriptionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SpeechToTextServiceServer).StreamTranscription(
		&grpc.GenericServerStream[StreamTranscriptionRequest, Transcript]{ServerStream: stream},
	)
}

// SpeechToTextService_ServiceDesc describes the service for grpc.Server.
var SpeechToTextService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpeechToTextServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTranscription",
			Handler:       streamTranscriptionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nupi/stt/v1/stt.json",
}

// SpeechToTextServiceClient is the client side of the service.
type SpeechToTextServiceClient interface {
	StreamTranscription(ctx context.Context, opts ...grpc.CallOption) (SpeechToTextService_StreamTranscriptionClient, error)
}

type speechToTextServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSpeechToTextServiceClient returns a client that encodes messages with
// the JSON codec.
func NewSpeechToTextServiceClient(cc grpc.ClientConnInterface) SpeechToTextServiceClient {
	return &speechToTextServiceClient{cc: cc}
}

func (c *speechToTextServiceClient) StreamTranscription(ctx context.Context, opts ...grpc.CallOption) (SpeechToTextService_StreamTranscriptionClient, error) {
	callOpts := append([]grpc.CallOption{grpc.StaticMethod(), grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &SpeechToTextService_ServiceDesc.Streams[0], StreamTranscriptionMethod, callOpts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[StreamTranscriptionRequest, Transcript]{ClientStream: stream}, nil
}
