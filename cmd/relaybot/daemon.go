package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the relaybot background service",
	}
	cmd.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the gateway as a user service (launchd/systemd)",
		Long:  "Generates and installs a service file that runs 'relaybot gateway' on login and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}

			var path string
			switch runtime.GOOS {
			case "darwin":
				path, err = installLaunchd(home, execPath, cfgPath)
			case "linux":
				path, err = installSystemd(home, execPath, cfgPath)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
			if err != nil {
				return err
			}
			printStartHints(path)
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the relaybot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			path, err := servicePath(home, runtime.GOOS)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", path)
			return nil
		},
	}
}

const (
	launchdLabel = "com.relaybot.gateway"
	systemdUnit  = "relaybot.service"
)

func servicePath(home, goos string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

func renderLaunchd(execPath, cfgPath, logDir string) string {
	r := strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LABEL}}", launchdLabel,
		"{{LOG}}", filepath.Join(logDir, "relaybot.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "relaybot-error.log"),
	)
	return r.Replace(launchdTemplate)
}

func renderSystemd(execPath, cfgPath string) string {
	return strings.NewReplacer("{{EXEC}}", execPath, "{{CONFIG}}", cfgPath).Replace(systemdTemplate)
}

func installLaunchd(home, execPath, cfgPath string) (string, error) {
	path, _ := servicePath(home, "darwin")
	logDir := filepath.Join(home, ".relaybot", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}
	return path, writeServiceFile(path, renderLaunchd(execPath, cfgPath, logDir))
}

func installSystemd(home, execPath, cfgPath string) (string, error) {
	path, _ := servicePath(home, "linux")
	return path, writeServiceFile(path, renderSystemd(execPath, cfgPath))
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func printStartHints(path string) {
	fmt.Printf("Daemon installed: %s\n", path)
	if strings.HasSuffix(path, ".plist") {
		fmt.Printf("To start: launchctl load %s\n", path)
		fmt.Printf("To stop:  launchctl unload %s\n", path)
		return
	}
	fmt.Printf("To start:  systemctl --user start relaybot\n")
	fmt.Printf("To enable: systemctl --user enable relaybot\n")
	fmt.Printf("To stop:   systemctl --user stop relaybot\n")
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=relaybot Discord relay gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} gateway --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
