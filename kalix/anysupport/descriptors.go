package anysupport

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// DefaultDescriptorSetPath is where the build places the compiled descriptors.
const DefaultDescriptorSetPath = "user-function.desc"

// LoadDescriptorSet reads a compiled descriptor set file. It returns both the
// parsed set and the raw bytes; discovery advertises the bytes verbatim.
func LoadDescriptorSet(path string) (*descriptorpb.FileDescriptorSet, []byte, error) {
	if path == "" {
		path = DefaultDescriptorSetPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read descriptor set %s: %w", path, err)
	}
	fds := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(raw, fds); err != nil {
		return nil, nil, fmt.Errorf("failed to parse descriptor set %s: %w", path, err)
	}
	return fds, raw, nil
}
