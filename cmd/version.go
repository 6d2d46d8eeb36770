package cmd

// Version holds the application version. It is intended to be overridden
// at build time via ldflags:
//
//	go build -ldflags "-X github.com/Imetomi/bugninja-cli/cmd.Version=1.2.3"
var Version = "0.1.0"
