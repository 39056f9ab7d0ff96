package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a running client is connected",
	RunE:  runStatus,
}

type sessionStatus struct {
	Connected bool `json:"connected"`
	Chats     int  `json:"chats"`
	UIClients int  `json:"uiClients"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/session", cfg.BridgeAddr()))
	if err != nil {
		color.Red("❌ No matchme client running on %s", cfg.BridgeAddr())
		return nil
	}
	defer resp.Body.Close()

	var st sessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("unexpected bridge response: %w", err)
	}

	if st.Connected {
		color.Green("✅ Connected")
	} else {
		color.Yellow("⚠️  Disconnected (reconnecting)")
	}
	fmt.Printf("Chats: %d\nUI clients: %d\n", st.Chats, st.UIClients)
	return nil
}
