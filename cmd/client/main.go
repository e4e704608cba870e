package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/joehewett/eriswood/internal/client"
	"github.com/joehewett/eriswood/internal/logging"
	"github.com/joehewett/eriswood/internal/model"
)

const (
	moveStep   = 16.0 // canvas units per key press
	drawRate   = time.Second / 30
	idleAfter  = 250 * time.Millisecond
	frameTicks = 10
)

func main() {
	var (
		host    = flag.String("host", envOr("ERISWOOD_HOST", "localhost:1999"), "presence server host:port")
		name    = flag.String("name", "Anonymous", "display name")
		player  = flag.String("player", "", "fixed player id (e.g. coro or joe); empty uses the persisted id")
		sprite  = flag.Int("sprite", 0, "sprite variant")
		logPath = flag.String("logfile", "client.log", "log file path")
	)
	flag.Parse()

	log := logging.NewFileLogger(*logPath)
	defer func() { _ = log.Sync() }()

	session := client.NewSession(client.SessionOptions{
		Host:          *host,
		PlayerName:    *name,
		FixedPlayerID: *player,
		SpriteVariant: *sprite,
	}, log)
	defer session.Close()
	session.SetLocation(model.LocationVillage)

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorReset).Foreground(tcell.ColorReset))

	interp := client.NewInterpolator()

	// Local player state, in canvas coordinates.
	pos := model.CenteredPosition()
	facing := model.FacingRight
	frame := 0
	frameCounter := 0
	location := model.LocationVillage
	lastMove := time.Time{}

	drawTicker := time.NewTicker(drawRate)
	defer drawTicker.Stop()
	quit := make(chan struct{})
	moves := make(chan tcell.Key, 16)
	locs := make(chan model.GameLocation, 4)

	go func() {
		for {
			ev := screen.PollEvent()
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch ev.Key() {
				case tcell.KeyEscape, tcell.KeyCtrlC:
					close(quit)
					return
				case tcell.KeyUp, tcell.KeyDown, tcell.KeyLeft, tcell.KeyRight:
					select {
					case moves <- ev.Key():
					default:
					}
				case tcell.KeyRune:
					if r := ev.Rune(); r >= '1' && r <= '6' {
						select {
						case locs <- model.GameLocation(r - '0'):
						default:
						}
					}
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	}()

	for {
		select {
		case key := <-moves:
			switch key {
			case tcell.KeyUp:
				pos.Y -= moveStep
			case tcell.KeyDown:
				pos.Y += moveStep
			case tcell.KeyLeft:
				pos.X -= moveStep
				facing = model.FacingLeft
			case tcell.KeyRight:
				pos.X += moveStep
				facing = model.FacingRight
			}
			pos = model.ClampToCanvas(pos)
			lastMove = time.Now()
			session.Publish(pos, frame, true, facing)

		case loc := <-locs:
			if loc != location {
				location = loc
				session.ChangeLocation(loc)
				session.Publish(pos, frame, false, facing)
			}

		case <-drawTicker.C:
			moving := time.Since(lastMove) < idleAfter
			if moving {
				frameCounter++
				if frameCounter%frameTicks == 0 {
					frame = 1 - frame
				}
			} else {
				frameCounter = 0
				frame = 0
			}
			session.Publish(pos, frame, moving, facing)

			interp.Observe(session.Others())
			draw(screen, session, interp.Advance(), pos, location)

		case <-quit:
			return
		}
	}
}

func draw(screen tcell.Screen, session *client.Session, others []client.RenderedPlayer, local model.Position, location model.GameLocation) {
	screen.Clear()

	w, h := screen.Size()
	// Leave the top rows for the HUD.
	rect := model.MapRect{X: 0, Y: 3, Width: float64(w), Height: float64(h - 3)}

	for _, p := range others {
		sp := model.CanvasToScreen(p.Position, rect)
		style := tcell.StyleDefault.Foreground(spriteColor(p.SpriteVariant))
		glyph := 'O'
		if p.Frame == 1 {
			glyph = 'o'
		}
		screen.SetContent(int(sp.X), int(sp.Y), glyph, nil, style)
		drawText(screen, int(sp.X)+2, int(sp.Y), style, p.PlayerName)
	}

	lp := model.CanvasToScreen(local, rect)
	screen.SetContent(int(lp.X), int(lp.Y), '@', nil, tcell.StyleDefault.Foreground(tcell.ColorGreen))

	status := session.Status()
	line := "disconnected"
	switch {
	case status.Connected:
		line = "connected"
	case status.Connecting:
		line = "connecting..."
	case status.Err != "":
		line = "error: " + status.Err
	}
	drawText(screen, 0, 0, tcell.StyleDefault, fmt.Sprintf("%s | %s | %d others | arrows move, 1-6 switch location, ESC quits",
		location, line, len(others)))
	drawText(screen, 0, 1, tcell.StyleDefault, "you: "+session.PlayerID())

	screen.Show()
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, style)
	}
}

func spriteColor(variant int) tcell.Color {
	colors := []tcell.Color{tcell.ColorBlue, tcell.ColorYellow, tcell.ColorFuchsia, tcell.ColorAqua}
	return colors[variant%len(colors)]
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
