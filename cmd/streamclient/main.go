package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/avsync"
	"github.com/deskstream/streamcore/internal/streaming/dispatcher"
	"github.com/deskstream/streamcore/internal/streaming/engine/openh264"
	"github.com/deskstream/streamcore/internal/streaming/input"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
	"github.com/deskstream/streamcore/internal/streaming/receiver"
	"github.com/deskstream/streamcore/internal/streaming/stats"
	"github.com/deskstream/streamcore/internal/streaming/transport/client"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

var (
	version    = "0.1.0"
	serverAddr string
	deviceID   string
	passphrase string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "streamclient",
	Short: "Streaming core demo client host",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a streamd server and subscribe to the default stream",
	Run: func(cmd *cobra.Command, args []string) {
		runClient()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamclient v%s\n", version)
	},
}

func init() {
	runCmd.Flags().StringVar(&serverAddr, "server", "127.0.0.1:7800", "streamd UDP address")
	runCmd.Flags().StringVar(&deviceID, "device-id", "", "device ID advertised in HELLO (default: random)")
	runCmd.Flags().StringVar(&passphrase, "cipher-passphrase", "", "shared PSK passphrase, empty disables encryption")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	logging.Init("text", "info", os.Stdout)
	log = logging.L("main")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runClient() {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	cfg := client.Config{
		ServerAddr:       serverAddr,
		DeviceID:         deviceID,
		CipherPassphrase: passphrase,
	}

	clientStats := stats.NewBucket()

	var frameCount, audioFrameCount uint64
	presentVideo := pipeline.NewSinkSlot(func(f pipeline.Frame) error {
		frameCount++
		if frameCount%60 == 0 {
			log.Info("video frames presented", "stream", f.StreamID, "count", frameCount)
		}
		return nil
	})
	presentAudio := pipeline.NewSinkSlot(func(f pipeline.Frame) error {
		audioFrameCount++
		return nil
	})
	synchronizer := avsync.New(presentVideo, presentAudio, clientStats)

	videoSyncSink := pipeline.NewSinkSlot(func(f pipeline.Frame) error {
		return synchronizer.OnVideoInput(f, timeFromClientTimestamp(f))
	})
	audioSyncSink := pipeline.NewSinkSlot(func(f pipeline.Frame) error {
		return synchronizer.OnAudioInput(f)
	})
	presentVideo.Start()
	presentAudio.Start()
	videoSyncSink.Start()
	audioSyncSink.Start()

	videoPipe := receiver.NewVideoPipeline(videoSyncSink, videoDecoderFactory, onPresenterFormatChange, false)
	audioPipe := receiver.NewAudioPipeline(audioSyncSink, audioDecoderFactory, 2, 48000, "stereo", 4)

	controllers := input.NewManager()
	controllers.Register(input.NewMouseController("/mouse", func(cursor input.CursorState) {
		log.Debug("cursor update", "type", cursor.Type)
	}))
	controllers.Register(input.NewKeyboardController("/keyboard", nil))

	var c *client.Client
	handlers := client.Handlers{
		OnVideoFrame: func(f pipeline.Frame) {
			colorRange := receiver.ColorRangeLimited
			if f.ColorRangeFull {
				colorRange = receiver.ColorRangeFull
			}
			if err := videoPipe.SubmitFrame(f, colorRange); err != nil {
				log.Warn("submit video frame failed", "stream", f.StreamID, "err", err)
			}
		},
		OnAudioFrame: func(f pipeline.Frame) {
			if err := audioPipe.SubmitFrame(f); err != nil {
				log.Warn("submit audio frame failed", "stream", f.StreamID, "err", err)
			}
		},
		OnVideoInit: func(m wire.VideoInitMessage) {
			log.Info("video init", "codec", m.Codec, "width", m.Width, "height", m.Height, "bitDepth", m.BitDepth)
			if err := videoPipe.OnInputChanged(receiver.VideoInputParams{
				Codec:          m.Codec,
				InitID:         m.InitID,
				Width:          m.Width,
				Height:         m.Height,
				ViewportWidth:  m.ViewportWidth,
				ViewportHeight: m.ViewportHeight,
				BitDepth:       m.BitDepth,
				InitBlock:      m.InitBlock,
			}); err != nil {
				log.Error("video pipeline reinit failed", "err", err)
			}
		},
		OnAudioInit: func(m wire.AudioInitMessage) {
			log.Info("audio init", "codec", m.Codec, "channels", m.Channels, "sampleRate", m.SampleRate)
			if err := audioPipe.OnInputChanged(receiver.AudioInputParams{
				Codec:         m.Codec,
				InitID:        m.InitID,
				Channels:      m.Channels,
				SampleRate:    m.SampleRate,
				ChannelLayout: m.ChannelLayout,
				InitBlock:     m.InitBlock,
			}); err != nil {
				log.Error("audio pipeline reinit failed", "err", err)
			}
		},
		OnSensorEvent: func(payload []byte) {
			entries, err := input.DecodeEvents(payload)
			if err != nil {
				log.Debug("malformed sensors-out payload", "err", err)
				return
			}
			for _, e := range entries {
				if err := controllers.Dispatch(e.ID, e.Value); err != nil {
					log.Debug("sensor dispatch failed", "controlID", e.ID, "err", err)
				}
			}
		},
		OnStats: func(payload []byte) {
			log.Debug("stats update", "bytes", len(payload))
		},
		OnRequestKeyFrame: func(streamID int32) {
			log.Warn("frame gap persisted, requesting key frame", "stream", streamID)
			if err := c.RequestKeyFrame(streamID); err != nil {
				log.Warn("failed to send key-frame request", "stream", streamID, "err", err)
			}
		},
	}
	c = client.New(cfg, handlers)
	defer videoPipe.Close()
	defer audioPipe.Close()

	log.Info("connecting", "server", serverAddr, "deviceID", deviceID)
	if err := c.Connect(); err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.Subscribe(dispatcher.DefaultStream); err != nil {
		log.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	log.Info("subscribed to default stream, streaming")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("disconnecting")
}

// timeFromClientTimestamp recovers the wall-clock receive time a
// pipeline.Frame was stamped with, for avsync's drift measurement.
func timeFromClientTimestamp(f pipeline.Frame) time.Time {
	if f.ClientTimestamp == 0 {
		return time.Now()
	}
	return time.UnixMicro(f.ClientTimestamp)
}

// videoDecoderFactory is the host-registered decoder plugin (spec.md
// §11): codecs are resolved to concrete pipeline.Engine implementations
// here, never inside the receiver package itself.
func videoDecoderFactory(codec string, initBlock []byte) (pipeline.Engine, error) {
	switch strings.ToUpper(codec) {
	case "H264", "":
		return openh264.NewDecoder()
	default:
		return nil, fmt.Errorf("streamclient: unsupported video codec %q", codec)
	}
}

// audioDecoderFactory stands in for a real Opus/AAC decode stage — no
// such codec library appears anywhere in the example pack (see
// DESIGN.md), so this passthrough treats the wire payload as already
// being PCM, keeping the reinit-on-InitID-change logic it sits behind
// exercised end to end.
func audioDecoderFactory(codec string, initBlock []byte) (pipeline.Engine, error) {
	return &pcmPassthroughDecoder{}, nil
}

type pcmPassthroughDecoder struct {
	pending []pipeline.Frame
}

func (d *pcmPassthroughDecoder) SubmitInput(f pipeline.Frame) (pipeline.EngineStatus, error) {
	d.pending = append(d.pending, f)
	return pipeline.EngineOK, nil
}

func (d *pcmPassthroughDecoder) QueryOutput() (pipeline.Frame, bool, error) {
	if len(d.pending) == 0 {
		return pipeline.Frame{}, false, nil
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, true, nil
}

func (d *pcmPassthroughDecoder) Flush() error {
	d.pending = nil
	return nil
}

// onPresenterFormatChange is the demo host's presenter reconfiguration
// hook (spec.md §4.6): a real client swaps its swapchain format here.
func onPresenterFormatChange(f receiver.PresenterFormat) {
	log.Info("presenter format changed", "pixel", f.Pixel, "rgbaF16", f.RGBAF16, "exclusiveFullscreen", f.ExclusiveFullscreen)
}
