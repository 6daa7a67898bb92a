// descinfo prints the services and messages contained in a compiled
// descriptor set file, the same file the host loads at startup.
//
// Usage:
//
//	go run ./cmd/descinfo user-function.desc
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
)

func main() {
	flag.Parse()
	path := flag.Arg(0)
	if path == "" {
		path = anysupport.DefaultDescriptorSetPath
	}

	fds, raw, err := anysupport.LoadDescriptorSet(path)
	if err != nil {
		log.Fatalf("descinfo: %v", err)
	}
	as, err := anysupport.New(fds)
	if err != nil {
		log.Fatalf("descinfo: %v", err)
	}

	fmt.Printf("%s: %d bytes, %d files\n", path, len(raw), len(fds.GetFile()))

	as.Files().RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		fmt.Printf("\n%s (package %s)\n", fd.Path(), fd.Package())
		services := fd.Services()
		for i := 0; i < services.Len(); i++ {
			sd := services.Get(i)
			fmt.Printf("  service %s\n", sd.FullName())
			methods := sd.Methods()
			for j := 0; j < methods.Len(); j++ {
				md := methods.Get(j)
				fmt.Printf("    rpc %s(%s) returns (%s)\n",
					md.Name(), md.Input().FullName(), md.Output().FullName())
			}
		}
		messages := fd.Messages()
		for i := 0; i < messages.Len(); i++ {
			fmt.Printf("  message %s\n", messages.Get(i).FullName())
		}
		return true
	})

	_ = os.Stdout.Sync()
}
