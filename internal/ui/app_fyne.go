//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	_ "golang.org/x/image/webp"

	tcanvas "thumbtory/internal/canvas"
	"thumbtory/internal/config"
	"thumbtory/internal/crash"
	"thumbtory/internal/editor"
	"thumbtory/internal/export"
	applog "thumbtory/internal/log"
	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
	"thumbtory/internal/textlayout"
	"thumbtory/internal/version"
)

// mainQueue runs editor work on the Fyne main goroutine.
type mainQueue struct{}

func (mainQueue) Post(fn func()) { fyne.Do(fn) }

const (
	autosaveInterval = 2 * time.Minute
	autosaveKeep     = 20
)

// Run starts the desktop editor. workspaceDir, when set, is opened (and
// created if needed) for templates, autosave and the preview cache.
func Run(workspaceDir string) error {
	cfg, _, err := config.Load()
	if err != nil {
		cfg = config.Defaults()
	}
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	if strings.TrimSpace(workspaceDir) == "" {
		workspaceDir = cfg.General.Workspace
	}
	var ws *storage.Workspace
	if strings.TrimSpace(workspaceDir) != "" {
		if ws, err = storage.InitWorkspace(workspaceDir); err != nil {
			return fmt.Errorf("open workspace: %w", err)
		}
	}

	fyneApp := app.NewWithID("thumbtory")
	w := fyneApp.NewWindow("Thumbtory")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1280)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 900 {
		winW = 900
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	setStatus := func(msg string) { fyne.Do(func() { status.SetText(msg) }) }
	report := func(err error) {
		if err == nil {
			return
		}
		l.Warn("operation failed", slog.Any("err", err))
		setStatus(editor.Notice(err))
	}

	previewImg := canvas.NewImageFromImage(nil)
	previewImg.FillMode = canvas.ImageFillContain
	previewImg.SetMinSize(fyne.NewSize(320, 180))
	previewInfo := widget.NewLabel("No preview yet")

	opts := editor.OptionsFromConfig(cfg)
	opts.Workspace = ws
	opts.Queue = mainQueue{}
	opts.OnPreview = func(p editor.Preview) {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			l.Debug("preview decode failed", slog.Any("err", err))
			return
		}
		fyne.Do(func() {
			previewImg.Image = img
			previewImg.Refresh()
			previewInfo.SetText(fmt.Sprintf("%s %s, %d KB", p.Key.Preset, p.Format, export.EstimateKB(p.Data)))
		})
	}
	sess := editor.New(opts)
	defer sess.Close()
	root := ""
	if ws != nil {
		root = ws.Root
	}
	defer crash.Recover(root, sess)

	raster := sess.AttachRaster()
	tc := NewThumbCanvas(raster)
	defer tc.Detach()
	tc.OnError = report
	tc.OnEditText = func(id, current string) {
		entry := widget.NewMultiLineEntry()
		entry.SetText(current)
		dialog.ShowForm("Edit text", "Apply", "Cancel", []*widget.FormItem{widget.NewFormItem("Text", entry)}, func(ok bool) {
			if ok {
				report(raster.EditText(id, entry.Text))
			}
			report(raster.EndTextEdit(id))
		}, w)
	}

	center := func() (float64, float64) {
		sw, sh := raster.Size()
		return float64(sw) / 4, float64(sh) / 3
	}

	// Elements
	styleSelect := widget.NewSelect(textlayout.ListStyles(), nil)
	styleSelect.SetSelected("Heading")
	addText := widget.NewButtonWithIcon("Text", theme.ContentAddIcon(), func() {
		x, y := center()
		_, err := sess.AddText(styleSelect.Selected, "Your headline", x, y)
		report(err)
	})
	addImage := widget.NewButtonWithIcon("Image", theme.FileImageIcon(), func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil || rc == nil {
				return
			}
			path := rc.URI().Path()
			_ = rc.Close()
			x, y := center()
			if _, err := sess.AddImage(path, 0, 0, x, y); err != nil {
				report(err)
				return
			}
			setStatus("Added " + path)
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".webp"}))
		fd.Show()
	})
	shapeSelect := widget.NewSelect([]string{string(scene.Rectangle), string(scene.Circle), string(scene.Triangle)}, nil)
	shapeSelect.SetSelected(string(scene.Rectangle))
	addShape := widget.NewButtonWithIcon("Shape", theme.ContentAddIcon(), func() {
		x, y := center()
		_, err := sess.AddShape(scene.ShapeKind(shapeSelect.Selected), 200, 120, "#f97316", x, y)
		report(err)
	})
	withSelected := func(fn func(id string)) func() {
		return func() {
			if id, ok := sess.Model().Selected(); ok {
				fn(id)
				return
			}
			setStatus("Select an element first")
		}
	}
	deleteBtn := widget.NewButtonWithIcon("", theme.DeleteIcon(), withSelected(func(id string) {
		sess.Model().RemoveElement(id)
	}))
	upBtn := widget.NewButtonWithIcon("", theme.MoveUpIcon(), withSelected(func(id string) {
		_, err := sess.Reorder(id, scene.Up)
		report(err)
	}))
	downBtn := widget.NewButtonWithIcon("", theme.MoveDownIcon(), withSelected(func(id string) {
		_, err := sess.Reorder(id, scene.Down)
		report(err)
	}))
	undo := func() {
		if !sess.Model().Undo() {
			setStatus("Nothing to undo")
		}
	}
	redo := func() {
		if !sess.Model().Redo() {
			setStatus("Nothing to redo")
		}
	}
	bgEntry := widget.NewEntry()
	bgEntry.SetPlaceHolder("#1e293b")
	bgBtn := widget.NewButton("Background", func() {
		c := strings.TrimSpace(bgEntry.Text)
		if c == "" {
			sess.Model().SetBackground(scene.Background{})
			return
		}
		sess.Model().SetBackground(scene.ColorBackground(c))
	})
	themeSelect := widget.NewSelect([]string{string(tcanvas.ThemeLight), string(tcanvas.ThemeDark)}, func(v string) {
		sess.SetTheme(tcanvas.ParseTheme(v))
	})
	themeSelect.SetSelected(string(tcanvas.ParseTheme(cfg.General.Theme)))

	toolbar := container.NewHBox(
		styleSelect, addText, addImage, shapeSelect, addShape,
		widget.NewSeparator(), deleteBtn, upBtn, downBtn,
		widget.NewButtonWithIcon("", theme.ContentUndoIcon(), undo),
		widget.NewButtonWithIcon("", theme.ContentRedoIcon(), redo),
		widget.NewSeparator(), bgEntry, bgBtn, themeSelect,
		widget.NewButtonWithIcon("", theme.ZoomFitIcon(), tc.ResetView),
	)

	setEnabled := func(b *widget.Button, on bool) {
		if on {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	updateButtons := func() {
		m := sess.Model()
		id, ok := m.Selected()
		setEnabled(deleteBtn, ok)
		setEnabled(upBtn, ok && !m.IsTopmost(id))
		setEnabled(downBtn, ok && !m.IsBottommost(id))
	}
	updateButtons()
	unsubButtons := sess.Model().Subscribe(func(scene.Change) { fyne.Do(updateButtons) })
	defer unsubButtons()

	// SEO
	titleEntry := widget.NewEntry()
	keywordsEntry := widget.NewEntry()
	keywordsEntry.SetPlaceHolder("comma separated")
	applySEO := widget.NewButton("Apply", func() {
		var kws []string
		for _, k := range strings.Split(keywordsEntry.Text, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kws = append(kws, k)
			}
		}
		seo := sess.Model().SEO()
		seo.Title, seo.Keywords = strings.TrimSpace(titleEntry.Text), kws
		sess.Model().SetSEO(seo)
		setStatus("SEO updated")
	})

	// Export
	var presetIDs []string
	for _, p := range sess.Engine().Presets().Enabled() {
		presetIDs = append(presetIDs, p.ID)
	}
	presetSelect := widget.NewSelect(presetIDs, nil)
	presetSelect.SetSelected(sess.Engine().Presets().Default().ID)
	fitSelect := widget.NewSelect([]string{string(export.FitContain), string(export.FitCover)}, nil)
	fitSelect.SetSelected(string(sess.Engine().Settings().Fit))
	bgModeSelect := widget.NewSelect([]string{
		string(export.BackgroundWhite), string(export.BackgroundDark),
		string(export.BackgroundTransparent), string(export.BackgroundWebP),
	}, nil)
	bgModeSelect.SetSelected(string(sess.Engine().Settings().Background))
	bundleCheck := widget.NewCheck("Zip bundle", nil)
	proofCheck := widget.NewCheck("PDF proof sheet", nil)
	request := func() export.Request {
		return export.Request{
			PresetID:   presetSelect.Selected,
			Fit:        export.Fit(fitSelect.Selected),
			Background: export.BackgroundMode(bgModeSelect.Selected),
		}
	}
	exportDir := func() string {
		if cfg.Export.OutDir != "" {
			return cfg.Export.OutDir
		}
		if ws != nil {
			return ws.ExportsDir()
		}
		return ""
	}
	exportTo := func(dir string, all bool) {
		setStatus("Exporting…")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if !all {
				res, err := sess.Export(ctx, request())
				if err != nil {
					report(err)
					return
				}
				paths, err := export.WriteResults(dir, []export.Result{res}, sess.Model().SEO(), time.Now())
				if err != nil {
					report(err)
					return
				}
				setStatus(fmt.Sprintf("Saved %s (%d KB)", paths[0], res.SizeKB))
				return
			}
			paths, batch, err := sess.ExportToDir(ctx, dir, request(), bundleCheck.Checked, proofCheck.Checked)
			if err != nil {
				report(err)
				return
			}
			msg := fmt.Sprintf("Exported %d presets, %d files", len(batch.Results), len(paths))
			if len(batch.Failures) > 0 {
				msg += fmt.Sprintf(", %d failed: %s", len(batch.Failures), editor.Notice(batch.Failures[0]))
			}
			setStatus(msg)
		}()
	}
	chooseDir := func(all bool) func() {
		return func() {
			if d := exportDir(); d != "" {
				exportTo(d, all)
				return
			}
			dialog.ShowFolderOpen(func(u fyne.ListableURI, err error) {
				if err != nil || u == nil {
					return
				}
				exportTo(u.Path(), all)
			}, w)
		}
	}
	exportOne := widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), chooseDir(false))
	exportAll := widget.NewButtonWithIcon("Export all", theme.DocumentSaveIcon(), chooseDir(true))
	refreshPreview := widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() {
		go func() {
			_, err := sess.RefreshPreview(context.Background())
			report(err)
		}()
	})

	// Templates
	saveTemplate := widget.NewButton("Save template", func() {
		if ws == nil {
			report(editor.ErrNoWorkspace)
			return
		}
		name := widget.NewEntry()
		name.SetText(sess.Name())
		dialog.ShowForm("Save template", "Save", "Cancel", []*widget.FormItem{widget.NewFormItem("Name", name)}, func(ok bool) {
			if !ok {
				return
			}
			path, err := sess.SaveTemplate(context.Background(), name.Text)
			if err != nil {
				report(err)
				return
			}
			setStatus("Saved " + path)
			w.SetTitle("Thumbtory - " + sess.Name())
		}, w)
	})
	loadTemplate := widget.NewButton("Open template", func() {
		if ws == nil {
			report(editor.ErrNoWorkspace)
			return
		}
		showTemplatePicker(w, ws, func(name string) {
			if err := sess.LoadTemplate(name); err != nil {
				report(err)
				return
			}
			tc.ResetView()
			setStatus("Opened " + name)
			w.SetTitle("Thumbtory - " + sess.Name())
		})
	})

	right := container.NewVBox(
		widget.NewLabelWithStyle("Preview", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		previewImg, container.NewHBox(previewInfo, refreshPreview),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Export", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewForm(
			widget.NewFormItem("Preset", presetSelect),
			widget.NewFormItem("Fit", fitSelect),
			widget.NewFormItem("Background", bgModeSelect),
		),
		bundleCheck, proofCheck,
		container.NewHBox(exportOne, exportAll),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("SEO", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewForm(widget.NewFormItem("Title", titleEntry), widget.NewFormItem("Keywords", keywordsEntry)),
		applySEO,
		widget.NewSeparator(),
		container.NewHBox(saveTemplate, loadTemplate),
	)
	split := container.NewHSplit(tc, container.NewVScroll(right))
	split.Offset = 0.7
	w.SetContent(container.NewBorder(toolbar, status, nil, nil, split))

	// Shortcuts
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) { undo() })
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierShortcutDefault | fyne.KeyModifierShift}, func(fyne.Shortcut) { redo() })
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyY, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) { redo() })
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyDelete, fyne.KeyBackspace:
			withSelected(func(id string) { sess.Model().RemoveElement(id) })()
		case fyne.KeyEscape:
			sess.Model().Deselect()
		}
	})

	if ws != nil {
		addRecentWorkspace(prefs, ws.Root)
		w.SetTitle("Thumbtory - " + ws.Root)
		if err := sess.StartAutosave(autosaveInterval, autosaveKeep); err != nil {
			report(err)
		}
		if _, ok, err := storage.LatestSnapshot(context.Background(), ws); err == nil && ok {
			dialog.ShowConfirm("Recover", "Restore the latest autosave of this workspace?", func(yes bool) {
				if !yes {
					return
				}
				if _, err := sess.RecoverLatest(context.Background()); err != nil {
					report(err)
					return
				}
				setStatus("Autosave restored")
			}, w)
		}
	}

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		if ws != nil {
			if _, err := sess.Autosave(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				l.Warn("final autosave failed", slog.Any("err", err))
			}
		}
		w.Close()
	})
	w.ShowAndRun()
	l.Info("UI stopped")
	return nil
}

// showTemplatePicker lists the workspace templates and calls pick with the
// chosen name.
func showTemplatePicker(w fyne.Window, ws *storage.Workspace, pick func(name string)) {
	items, err := storage.ListTemplates(ws)
	if err != nil {
		dialog.ShowError(err, w)
		return
	}
	if len(items) == 0 {
		dialog.ShowInformation("Templates", "This workspace has no templates yet.", w)
		return
	}
	var d dialog.Dialog
	list := widget.NewList(
		func() int { return len(items) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			it := items[i]
			o.(*widget.Label).SetText(fmt.Sprintf("%s (%d elements)", it.Name, it.Elements))
		},
	)
	list.OnSelected = func(i widget.ListItemID) {
		d.Hide()
		pick(items[i].Name)
	}
	d = dialog.NewCustom("Open template", "Cancel", container.NewGridWrap(fyne.NewSize(360, 320), list), w)
	d.Show()
}

// Recent workspaces are kept as a JSON list in the app preferences.
const recentPrefsKey = "recent.workspaces"

func loadRecentWorkspaces(p fyne.Preferences) []string {
	var items []string
	if raw := p.StringWithFallback(recentPrefsKey, ""); strings.TrimSpace(raw) != "" {
		_ = json.Unmarshal([]byte(raw), &items)
	}
	return pushRecent(items, "", exists)
}

func addRecentWorkspace(p fyne.Preferences, path string) {
	b, _ := json.Marshal(pushRecent(loadRecentWorkspaces(p), path, exists))
	p.SetString(recentPrefsKey, string(b))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
