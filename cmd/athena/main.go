// Athena: a standalone RV32EM bytecode interpreter for smart-contract
// execution.
//
// This is the main entry point: it loads an ELF (or flat-text) executable,
// builds a single top-level call message, runs it against an in-process
// reference host, and prints the (status, gas_left, output) result tuple
// (spec §4.5/§6).
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/athenavm/athena/internal/calldata"
	"github.com/athenavm/athena/internal/debugstub"
	"github.com/athenavm/athena/internal/engine"
	"github.com/athenavm/athena/internal/hostref"
	"github.com/athenavm/athena/internal/types"
	"github.com/athenavm/athena/internal/vm"
)

var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var (
	codePath     = flag.String("code", "", "Path to the ELF or flat-text executable to run")
	recipient    = flag.String("recipient", "", "Recipient address, base58 (defaults to a zero address)")
	sender       = flag.String("sender", "", "Sender address, base58 (defaults to a zero address)")
	method       = flag.String("method", "", "Optional method name; prefixes calldata with its selector")
	inputHex     = flag.String("input", "", "Calldata argument bytes, hex-encoded")
	gasLimit     = flag.Int64("gas", 1_000_000, "Gas budget for the top-level call")
	value        = flag.Uint64("value", 0, "Value to transfer with the call")
	dataDir      = flag.String("data-dir", "", "Persist state to this directory via badger (default: in-memory)")
	debugAddr    = flag.String("debug-addr", "", "Attach the debug stub on this address (e.g. :2159) and wait before running")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("athena %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if *codePath == "" {
		log.Fatal("athena: -code is required")
	}
	code, err := os.ReadFile(*codePath)
	if err != nil {
		log.Fatalf("athena: read code: %v", err)
	}

	recipientAddr, err := parseAddress(*recipient)
	if err != nil {
		log.Fatalf("athena: bad -recipient: %v", err)
	}
	senderAddr, err := parseAddress(*sender)
	if err != nil {
		log.Fatalf("athena: bad -sender: %v", err)
	}

	input, err := hex.DecodeString(*inputHex)
	if err != nil {
		log.Fatalf("athena: bad -input: %v", err)
	}
	if *method != "" {
		input = calldata.NewPayload(*method, input).Encode()
	}

	txCtx := vm.TxContext{
		GasPrice:       1,
		Origin:         senderAddr,
		BlockHeight:    0,
		BlockTimestamp: 0,
		BlockGasLimit:  *gasLimit,
	}

	host, closeHost := openHost(txCtx)
	defer closeHost()

	if balancer, ok := host.(interface{ SetBalance(vm.Address, uint64) }); ok {
		balancer.SetBalance(senderAddr, *value)
	}

	msg := vm.Message{
		Kind:      vm.MessageKindCall,
		Depth:     0,
		Gas:       *gasLimit,
		Recipient: recipientAddr,
		Sender:    senderAddr,
		Input:     input,
		Value:     *value,
	}

	var debugHook *engine.DebugHook
	if *debugAddr != "" {
		debugHook = attachDebugStub(*debugAddr)
	}

	result := engine.Execute(engine.FRONTIER, host, msg, code, debugHook)

	fmt.Printf("status: %s\n", result.StatusCode)
	fmt.Printf("gas_left: %d\n", result.GasLeft)
	fmt.Printf("output: %s\n", hex.EncodeToString(result.Output))

	if result.StatusCode != 0 {
		os.Exit(1)
	}
}

func openHost(txCtx vm.TxContext) (vm.HostVtable, func()) {
	if *dataDir == "" {
		return hostref.New(txCtx), func() {}
	}
	store, err := hostref.Open(hostref.DefaultConfig(*dataDir), txCtx)
	if err != nil {
		log.Fatalf("athena: open store: %v", err)
	}
	store.BeginTx()
	return store, func() {
		if err := store.Commit(); err != nil {
			log.Printf("athena: commit: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("athena: close store: %v", err)
		}
	}
}

func parseAddress(s string) (vm.Address, error) {
	if s == "" {
		return vm.Address{}, nil
	}
	return types.AddressFromBase58(s)
}

// attachDebugStub loads the executable once up front just to size memory
// for the session is unnecessary — the real Frame/Memory are only known
// inside engine.Execute, so OnStart receives them there; this helper just
// starts listening and hands back an engine.DebugHook that blocks the
// frame until a debugger connects and issues its first command.
func attachDebugStub(addr string) *engine.DebugHook {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("athena: debug listen: %v", err)
	}
	log.Printf("athena: debug stub listening on %s", addr)

	return &engine.DebugHook{
		OnStart: func(f *vm.Frame, mem *vm.Memory) (vm.EbreakFunc, vm.StepFunc) {
			session := debugstub.NewSession(f, mem)
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("athena: debug accept: %v", err)
				session.Continue()
			} else {
				go func() {
					if err := debugstub.Serve(conn, session); err != nil {
						log.Printf("athena: debug session: %v", err)
					}
				}()
			}
			return session.Hook()
		},
	}
}
