package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"spoky/internal/ipc"
	"spoky/internal/speech"
	"spoky/pkg/audioconv"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: spoky-ctl <trigger|status|stop>")
	fmt.Fprintln(os.Stderr, "       spoky-ctl transcribe --model <path> <audio-file>")
	os.Exit(2)
}

func main() {
	model := cli.StringP("model", "m", "", "Whisper model path (for transcribe)")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "trigger", "status", "stop":
		resp, err := ipc.Send(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "spoky-daemon not running:", err)
			os.Exit(1)
		}
		if resp.Message != "" {
			fmt.Println(resp.Message)
		}
		if !resp.OK {
			os.Exit(1)
		}
	case "transcribe":
		if len(args) < 2 || *model == "" {
			usage()
		}
		transcribe(*model, args[1])
	default:
		usage()
	}
}

func transcribe(modelPath, audioPath string) {
	samples, err := audioconv.DecodeFile(audioPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}

	rec, err := speech.NewWhisper(modelPath, speech.WhisperOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "load model:", err)
		os.Exit(1)
	}
	defer rec.Close()

	tr, err := rec.Transcribe(samples)
	if err != nil {
		fmt.Fprintln(os.Stderr, "transcribe:", err)
		os.Exit(1)
	}
	fmt.Println(tr.Text)
}
