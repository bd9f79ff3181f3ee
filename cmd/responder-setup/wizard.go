package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// prompter reads line-oriented answers from the user.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// readLine returns the next input line, trimmed. An exhausted input
// stream counts as an empty answer.
func (p *prompter) readLine() string {
	if !p.in.Scan() {
		return ""
	}
	return strings.TrimSpace(p.in.Text())
}

// yesNo asks a y/n question, returning def on an empty answer.
func (p *prompter) yesNo(prompt string, def bool) bool {
	defStr := "y/N"
	if def {
		defStr = "Y/n"
	}
	for {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, defStr)
		switch strings.ToLower(p.readLine()) {
		case "":
			return def
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(p.out, "Please answer 'y' or 'n'")
	}
}

// number asks for an integer within [min, max].
func (p *prompter) number(prompt string, min, max int) int {
	for {
		fmt.Fprintf(p.out, "%s [%d-%d]: ", prompt, min, max)
		value, err := strconv.Atoi(p.readLine())
		if err != nil {
			fmt.Fprintln(p.out, "Please enter a valid number")
			continue
		}
		if value < min || value > max {
			fmt.Fprintf(p.out, "Value must be between %d and %d\n", min, max)
			continue
		}
		return value
	}
}

// text asks for a free-form answer, returning def on an empty answer.
func (p *prompter) text(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [default: %s]: ", prompt, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", prompt)
	}
	if answer := p.readLine(); answer != "" {
		return answer
	}
	return def
}

// serverType asks which server variant to configure.
func (p *prompter) serverType() config.ServerType {
	for {
		fmt.Fprintln(p.out, "\nServer types:")
		fmt.Fprintln(p.out, "  1. Echo server (echoes back received data)")
		fmt.Fprintln(p.out, "  2. Web server (serves HTTP content)")
		fmt.Fprint(p.out, "Select server type [1-2]: ")
		switch p.readLine() {
		case "1":
			return config.ServerTypeEcho
		case "2":
			return config.ServerTypeWeb
		}
		fmt.Fprintln(p.out, "Please enter 1 or 2")
	}
}

// webContent asks for the body a web server should serve, either typed
// literally or read once from a file and inlined into the config.
func (p *prompter) webContent() string {
	for {
		if p.yesNo("Read content from a file?", false) {
			path := p.text("File path", "")
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(p.out, "Could not read %s: %v\n", path, err)
				continue
			}
			return string(data)
		}

		if content := p.text("Content to serve", ""); content != "" {
			return content
		}
		fmt.Fprintln(p.out, "Web servers must have content")
	}
}

// configureServer collects one server spec, rejecting ports already
// taken by earlier servers.
func (p *prompter) configureServer(num int, usedPorts map[int]bool) config.ServerSpec {
	line := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\nConfiguring Server %d\n%s\n", line, num, line)

	spec := config.ServerSpec{Type: p.serverType()}

	for {
		port := p.number("Enter port number", 1, 65535)
		if usedPorts[port] {
			fmt.Fprintf(p.out, "Port %d is already in use by another server. Choose a different port.\n", port)
			continue
		}
		spec.Port = port
		usedPorts[port] = true
		break
	}

	spec.BindAddress = p.text("Enter bind address", "0.0.0.0")

	if spec.Type == config.ServerTypeWeb {
		spec.Content = p.webContent()
	}

	return spec
}

// runWizard drives the interactive session and writes the resulting
// configuration file.
func runWizard(in io.Reader, out io.Writer) error {
	p := newPrompter(in, out)

	fmt.Fprintln(out, "tcp-responder configuration wizard")

	count := p.number("\nHow many servers do you want to configure?", 1, config.MaxServers)

	usedPorts := make(map[int]bool, count)
	specs := make([]config.ServerSpec, 0, count)
	for i := 1; i <= count; i++ {
		specs = append(specs, p.configureServer(i, usedPorts))
	}

	cfg := &config.Config{
		Servers: specs,
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
		Shutdown: config.ShutdownConfig{
			GracePeriodSeconds: 5,
		},
	}

	if p.yesNo("\nEnable the admin status endpoint?", false) {
		cfg.Admin = config.AdminConfig{
			Host: "127.0.0.1",
			Port: p.number("Admin port", 1, 65535),
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if _, err := os.Stat(outputPath); err == nil && !force {
		if !p.yesNo(fmt.Sprintf("%s already exists. Overwrite?", outputPath), false) {
			fmt.Fprintln(out, "Aborted; nothing written.")
			return nil
		}
	}

	if err := cfg.Save(outputPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nWrote %d server(s) to %s\n", len(specs), outputPath)
	fmt.Fprintln(out, "Start them with: responder --config "+outputPath)
	return nil
}
