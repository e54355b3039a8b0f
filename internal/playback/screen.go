/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FrameGrabber captures frames for the screen mirror media type.
type FrameGrabber interface {
	Grab() (image.Image, error)
}

// DisplayGrabber captures the primary display.
type DisplayGrabber struct{}

func (DisplayGrabber) Grab() (image.Image, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return placeholderFrame("no active display"), nil
	}
	img, err := screenshot.CaptureDisplay(0)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// placeholderFrame renders a black frame with a short status line, shown
// when capture is unavailable so the kiosk never displays stale content.
func placeholderFrame(message string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 640, 360))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(20, 180),
	}
	d.DrawString(message)
	return img
}
