// Command tracker-cli is a terminal renderer for a group advantage session.
//
//	tracker-cli -server ws://localhost:8080 -session table-1 -name Ada
//
// Commands read from stdin:
//
//	spend <allies|adversaries> <action name>
//	adjust <allies|adversaries> <+n|-n>
//	set <allies|adversaries> <n>
//	menu <allies|adversaries>
//	show | hide | round <n> | end | ping | quit
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/server"
)

var errQuit = errors.New("quit")

func main() {
	serverURL := flag.String("server", "ws://localhost:8080", "tracker server base URL")
	sessionID := flag.String("session", "", "session ID to join")
	name := flag.String("name", "", "display name")
	passphrase := flag.String("passphrase", os.Getenv("GA_OWNER_PASSPHRASE"), "owner passphrase (empty joins as a viewer)")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("-session is required")
	}

	target, err := dialURL(*serverURL, *sessionID, *name, *passphrase)
	if err != nil {
		log.Fatalf("invalid server URL: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	go readFrames(conn, os.Stdout)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		intent, err := parseCommand(line)
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "? %v\n", err)
			continue
		}
		if err := conn.WriteJSON(intent); err != nil {
			log.Fatalf("send failed: %v", err)
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func dialURL(base, sessionID, name, passphrase string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(sessionID)
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if passphrase != "" {
		q.Set("passphrase", passphrase)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCommand(line string) (server.Intent, error) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	needKind := func() (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("%s needs a counter (allies or adversaries)", cmd)
		}
		kind, err := advantage.ParseKind(args[0])
		if err != nil {
			return "", err
		}
		return kind.String(), nil
	}
	needInt := func(i int) (int, error) {
		if len(args) <= i {
			return 0, fmt.Errorf("%s needs a number", cmd)
		}
		return strconv.Atoi(strings.TrimPrefix(args[i], "+"))
	}

	switch cmd {
	case "spend":
		kind, err := needKind()
		if err != nil {
			return server.Intent{}, err
		}
		if len(args) < 2 {
			return server.Intent{}, errors.New("spend needs an action name")
		}
		return server.Intent{Type: server.IntentSpend, Kind: kind, Action: strings.Join(args[1:], " ")}, nil
	case "adjust":
		kind, err := needKind()
		if err != nil {
			return server.Intent{}, err
		}
		delta, err := needInt(1)
		if err != nil {
			return server.Intent{}, err
		}
		return server.Intent{Type: server.IntentAdjust, Kind: kind, Delta: delta}, nil
	case "set":
		kind, err := needKind()
		if err != nil {
			return server.Intent{}, err
		}
		value, err := needInt(1)
		if err != nil {
			return server.Intent{}, err
		}
		return server.Intent{Type: server.IntentSet, Kind: kind, Value: &value}, nil
	case "menu":
		kind, err := needKind()
		if err != nil {
			return server.Intent{}, err
		}
		return server.Intent{Type: server.IntentToggleMenu, Kind: kind}, nil
	case "show":
		return server.Intent{Type: server.IntentShow}, nil
	case "hide":
		return server.Intent{Type: server.IntentHide}, nil
	case "round":
		round, err := needInt(0)
		if err != nil {
			return server.Intent{}, err
		}
		return server.Intent{Type: server.IntentRoundAdvanced, Round: round}, nil
	case "end":
		return server.Intent{Type: server.IntentSessionEnded}, nil
	case "ping":
		return server.Intent{Type: server.IntentPing}, nil
	case "quit", "exit":
		return server.Intent{}, errQuit
	default:
		return server.Intent{}, fmt.Errorf("unknown command %q", cmd)
	}
}

func readFrames(conn *websocket.Conn, out io.Writer) {
	for {
		var f server.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Fprintf(out, "! connection closed: %v\n", err)
			}
			os.Exit(0)
		}
		render(out, f)
	}
}

func render(out io.Writer, f server.Frame) {
	switch f.Type {
	case server.FrameWelcome:
		if f.Participant != nil {
			role := "viewer"
			if f.Participant.Privileged {
				role = "owner"
			}
			fmt.Fprintf(out, "joined as %s (%s)\n", f.Participant.Name, role)
		}
	case server.FrameView:
		if f.View == nil {
			return
		}
		v := f.View
		if v.Display == advantage.Hidden {
			fmt.Fprintln(out, "[tracker hidden]")
			return
		}
		fmt.Fprintf(out, "Allies: %d   Adversaries: %d\n", v.Allies, v.Adversaries)
		if v.Menu != "" {
			value := v.Value(v.Menu)
			for _, a := range v.Actions {
				marker := " "
				if a.Cost > value {
					marker = "x"
				}
				fmt.Fprintf(out, "  [%s] %-18s %d\n", marker, a.Name, a.Cost)
			}
		}
	case server.FrameNotification:
		if n := f.Notification; n != nil {
			fmt.Fprintf(out, "* %s spent %d %s advantage on %s\n", n.ActorLabel, n.Cost, n.Kind, n.ActionName)
		}
	case server.FrameError:
		if f.Error != nil {
			fmt.Fprintf(out, "! %s: %s\n", f.Error.Code, f.Error.Message)
		}
	case server.FramePong:
		fmt.Fprintln(out, "pong")
	}
}
