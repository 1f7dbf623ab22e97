package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

const SocketPath = "/tmp/spoky.sock"

type Request struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args,omitempty"`
}

type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// StartServer listens on the control socket and serves one request per
// connection. The handler runs on the connection's goroutine.
func StartServer(handler func(Request) Response) (net.Listener, error) {
	os.Remove(SocketPath)

	ln, err := net.Listen("unix", SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, handler)
		}
	}()

	return ln, nil
}

func handleConn(conn net.Conn, handler func(Request) Response) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	resp := handler(req)
	json.NewEncoder(conn).Encode(resp)
}

// Send delivers one command to a running daemon and waits for its reply.
func Send(cmd string, args ...string) (Response, error) {
	conn, err := net.Dial("unix", SocketPath)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(Request{Cmd: cmd, Args: args}); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
