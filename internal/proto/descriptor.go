package proto

import (
	_ "embed"

	gproto "google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Schema is users.proto, the source form of File.
//
//go:embed users.proto
var Schema string

// File describes gophusers/v1/users.proto. It is registered in
// protoregistry.GlobalFiles so server reflection can serve it.
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic("proto: build users.proto descriptor: " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic("proto: register users.proto: " + err.Error())
	}
	File = fd
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       gproto.String(name),
			InputType:  gproto.String(".google.protobuf." + in),
			OutputType: gproto.String(".google.protobuf." + out),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    gproto.String(UserService_ServiceDesc.Metadata.(string)),
		Package: gproto.String("gophusers.v1"),
		Dependency: []string{
			"google/protobuf/empty.proto",
			"google/protobuf/struct.proto",
			"google/protobuf/wrappers.proto",
		},
		Options: &descriptorpb.FileOptions{
			GoPackage: gproto.String("github.com/dmitrijs2005/gophusers/internal/proto"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: gproto.String("UserService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("ExchangeAssertion", "StringValue", "Struct"),
				method("GetMe", "Empty", "Struct"),
				method("UpdateProfile", "Struct", "Struct"),
				method("UpdateAccount", "Struct", "Struct"),
			},
		}},
		Syntax: gproto.String("proto3"),
	}
}
