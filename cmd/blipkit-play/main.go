package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/meter"
	"github.com/vsariola/blipkit/oto"
	"github.com/vsariola/blipkit/player"
	"github.com/vsariola/blipkit/version"
)

func main() {
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the working directory.")
	play := flag.Bool("p", false, "Play the input songs (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered song as .raw file. By default, saves an interleaved float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered song as 16-bit stereo .wav file.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting .raw files.")
	midiOut := flag.Bool("m", false, "Output the notes played by the tracks as .mid file.")
	levels := flag.Bool("l", false, "Print the peak and RMS levels of each channel and the dominant frequency of the first channel.")
	maxSeconds := flag.Float64("t", 300, "Stop rendering after this many seconds, for songs that loop forever.")
	debug := flag.Bool("debug", false, "Log debug messages.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash())
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if !*rawOut && !*wavOut && !*midiOut && !*levels {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	var audioContext *oto.OtoContext
	var audioRate, audioChannels int
	outputPath := func(filename, extension string) (string, error) {
		_, name := filepath.Split(filename)
		dir := *directory
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return "", fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
			}
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return "", fmt.Errorf("could not create output directory %v: %v", dir, err)
		}
		return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+extension), nil
	}
	process := func(filename string) error {
		song, err := blipkit.LoadSong(filename)
		if err != nil {
			return err
		}
		opts := []player.Option{player.WithLogger(logger.With("song", filepath.Base(filename)))}
		if *midiOut {
			opts = append(opts, player.WithMIDI())
		}
		p, err := player.New(song, opts...)
		if err != nil {
			return fmt.Errorf("player.New failed: %v", err)
		}
		frames, err := p.Render(int(*maxSeconds * float64(song.SampleRate)))
		if err != nil {
			return err
		}
		if !p.Done() {
			logger.Warn("song did not end within the time limit", "file", filename, "seconds", *maxSeconds)
		}
		var playWaiter blipkit.CloserWaiter
		if *play {
			if audioContext == nil {
				audioContext, err = oto.NewContext(song.SampleRate, song.Channels)
				if err != nil {
					return fmt.Errorf("could not acquire oto AudioContext: %v", err)
				}
				audioRate, audioChannels = song.SampleRate, song.Channels
			}
			if audioRate != song.SampleRate || audioChannels != song.Channels {
				return fmt.Errorf("cannot play %v Hz / %v channels on a %v Hz / %v channels device", song.SampleRate, song.Channels, audioRate, audioChannels)
			}
			playWaiter = audioContext.Play(blipkit.NewFrameSource(frames))
		}
		if *rawOut {
			raw, err := blipkit.Raw(frames, *pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			path, err := outputPath(filename, ".raw")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", path, err)
			}
		}
		if *wavOut {
			path, err := outputPath(filename, ".wav")
			if err != nil {
				return err
			}
			if err := writeWav(path, frames, song); err != nil {
				return fmt.Errorf("could not write file %v: %v", path, err)
			}
		}
		if *midiOut {
			path, err := outputPath(filename, ".mid")
			if err != nil {
				return err
			}
			if err := p.Recorder().WriteFile(path); err != nil {
				return err
			}
		}
		if *levels {
			printLevels(filename, frames, song)
		}
		if playWaiter != nil {
			playWaiter.Wait()
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			jsonfiles, err := filepath.Glob(filepath.Join(param, "*.json"))
			if err != nil {
				logger.Error("could not glob the path for json files", "path", param, "err", err)
				retval = 1
				continue
			}
			ymlfiles, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				logger.Error("could not glob the path for yml files", "path", param, "err", err)
				retval = 1
				continue
			}
			files := append(ymlfiles, jsonfiles...)
			for _, file := range files {
				if err := process(file); err != nil {
					logger.Error("could not process file", "file", file, "err", err)
					retval = 1
				}
			}
		} else {
			if err := process(param); err != nil {
				logger.Error("could not process file", "file", param, "err", err)
				retval = 1
			}
		}
	}
	if audioContext != nil {
		audioContext.Close()
	}
	os.Exit(retval)
}

func writeWav(path string, frames []int16, song *blipkit.Song) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	streamer := blipkit.NewStreamer(blipkit.NewFrameSource(frames), song.Channels)
	if err := blipkit.Wav(f, streamer, song.SampleRate, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printLevels(filename string, frames []int16, song *blipkit.Song) {
	fmt.Printf("%v: %.2f s\n", filename, float64(len(frames)/song.Channels)/float64(song.SampleRate))
	for ch, l := range meter.Levels(frames, song.Channels) {
		fmt.Printf("  channel %d: peak %6.1f dB, rms %6.1f dB\n", ch, l.PeakDB(), l.RMSDB())
	}
	first := make([]int16, len(frames)/song.Channels)
	for i := range first {
		first[i] = frames[i*song.Channels]
	}
	fmt.Printf("  dominant frequency: %.1f Hz\n", meter.DominantFrequency(meter.Float32(first), song.SampleRate))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "blipkit command line utility for playing .yml/.json song files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
