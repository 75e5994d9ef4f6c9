// Package gui is the desktop front-end for a compilation run.
package gui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/internal/pipeline"
)

const (
	logLines      = 500
	flushInterval = 200 * time.Millisecond
)

// Run opens the compile window and blocks until it is closed
func Run(ctx context.Context, logger zerolog.Logger, cfg *config.Config, pipe *pipeline.Pipeline) {
	a := app.NewWithID("reelcompiler")
	w := a.NewWindow("reelcompiler")
	w.Resize(fyne.NewSize(720, 640))

	f := newForm(cfg.Compilation)

	sourceEntry := widget.NewEntry()
	sourceEntry.SetPlaceHolder("Source folder (searched recursively)")
	sourceEntry.SetText(f.Source)
	sourceButton := widget.NewButton("Browse…", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			sourceEntry.SetText(uri.Path())
		}, w)
	})

	destEntry := widget.NewEntry()
	destEntry.SetText(f.OutputDir)
	destButton := widget.NewButton("Browse…", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			destEntry.SetText(uri.Path())
		}, w)
	})
	nameEntry := widget.NewEntry()
	nameEntry.SetText(f.OutputName)

	totalEntry := widget.NewEntry()
	totalEntry.SetText(f.Total)
	sceneEntry := widget.NewEntry()
	sceneEntry.SetText(f.Scene)
	seedEntry := widget.NewEntry()
	seedEntry.SetPlaceHolder("random")
	seedEntry.SetText(f.Seed)

	gridLabel := widget.NewLabel("")
	gridSlider := percentSlider(f.GridMix, 100, gridLabel, "Layout mix (single ↔ grids)")
	volumeLabel := widget.NewLabel("")
	volumeSlider := percentSlider(f.Volume, 200, volumeLabel, "Clip audio volume")

	status := widget.NewLabel("Ready.")
	progress := widget.NewProgressBar()
	logText := widget.NewLabel("")
	logText.TextStyle = fyne.TextStyle{Monospace: true}
	logScroll := container.NewVScroll(logText)
	logScroll.SetMinSize(fyne.NewSize(0, 200))

	logs := newLogBuffer(logLines)
	var cancel context.CancelFunc

	var generate, stop *widget.Button
	setRunning := func(running bool) {
		if running {
			generate.Disable()
			stop.Enable()
		} else {
			generate.Enable()
			stop.Disable()
		}
	}

	generate = widget.NewButton("Generate Video", func() {
		input := form{
			Source:     sourceEntry.Text,
			OutputDir:  destEntry.Text,
			OutputName: nameEntry.Text,
			Total:      totalEntry.Text,
			Scene:      sceneEntry.Text,
			Seed:       seedEntry.Text,
			GridMix:    gridSlider.Value,
			Volume:     volumeSlider.Value,
		}
		comp, err := input.compilation(cfg.Compilation)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}

		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		logs.Reset()
		progress.SetValue(0)
		setRunning(true)

		done := make(chan struct{})
		go flushLogs(done, logs, logText, logScroll)

		sink := pipeline.SinkFuncs{
			State: func(c pipeline.StateChange) {
				text := stateText(c)
				fyne.Do(func() { status.SetText(text) })
			},
			Progress: func(v float64) {
				fyne.Do(func() { progress.SetValue(v) })
			},
			Log: logs.Add,
		}

		go func() {
			res := pipe.Compile(runCtx, comp, sink)
			close(done)
			logger.Info().Str("state", res.State.Value).Dur("elapsed", res.Elapsed).Msg("run finished")
			fyne.Do(func() {
				setRunning(false)
				if text, ok := logs.Flush(); ok {
					logText.SetText(text)
					logScroll.ScrollToBottom()
				}
				showResult(w, status, res)
			})
		}()
	})
	generate.Importance = widget.HighImportance

	stop = widget.NewButton("Cancel", func() {
		if cancel != nil {
			cancel()
		}
	})
	stop.Disable()

	inputs := widget.NewForm(
		widget.NewFormItem("Source", container.NewBorder(nil, nil, nil, sourceButton, sourceEntry)),
		widget.NewFormItem("Total length (s)", totalEntry),
		widget.NewFormItem("Clip length (s)", sceneEntry),
		widget.NewFormItem("Seed", seedEntry),
		widget.NewFormItem("Destination", container.NewBorder(nil, nil, nil, destButton, destEntry)),
		widget.NewFormItem("Output filename", nameEntry),
	)

	w.SetContent(container.NewBorder(
		container.NewVBox(
			inputs,
			gridLabel, gridSlider,
			volumeLabel, volumeSlider,
			container.NewGridWithColumns(2, generate, stop),
			status,
			progress,
			widget.NewLabel("FFmpeg log:"),
		),
		nil, nil, nil,
		logScroll,
	))

	w.SetOnClosed(func() {
		if cancel != nil {
			cancel()
		}
	})
	w.ShowAndRun()
}

func percentSlider(value, max float64, label *widget.Label, title string) *widget.Slider {
	s := widget.NewSlider(0, max)
	s.Step = 1
	s.OnChanged = func(v float64) {
		label.SetText(fmt.Sprintf("%s: %.0f%%", title, v))
	}
	s.SetValue(value)
	label.SetText(fmt.Sprintf("%s: %.0f%%", title, value))
	return s
}

// flushLogs pushes buffered lines to the log box until done is closed
func flushLogs(done <-chan struct{}, logs *logBuffer, text *widget.Label, scroll *container.Scroll) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if s, ok := logs.Flush(); ok {
				fyne.Do(func() {
					text.SetText(s)
					scroll.ScrollToBottom()
				})
			}
		}
	}
}

func stateText(c pipeline.StateChange) string {
	switch c.State {
	case pipeline.StateScanning:
		return "Scanning source folder…"
	case pipeline.StatePlanning:
		return "Planning timeline…"
	case pipeline.StateRendering:
		return fmt.Sprintf("Rendering scene %d of %d…", c.Scene+1, c.Scenes)
	case pipeline.StateAssembling:
		return "Joining scenes…"
	}
	return strings.ToUpper(c.State.Value[:1]) + c.State.Value[1:]
}

func showResult(w fyne.Window, status *widget.Label, res *pipeline.RunResult) {
	switch {
	case res.Success:
		status.SetText("Done: " + res.Output)
		dialog.ShowInformation("Compilation ready", res.Output, w)
	case errs.IsCancelled(res.Err):
		status.SetText("Cancelled.")
	default:
		status.SetText(fmt.Sprintf("Failed (%s)", errs.Kind(res.Err)))
		dialog.ShowError(res.Err, w)
	}
}
