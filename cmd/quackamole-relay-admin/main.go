package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// A very simple CLI tool for the administration of quackamole-relay rooms and
// plugins via the HTTP API.

var (
	serverUrl string
	authToken string
)

func main() {
	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms or plugins",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
		},
	}

	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show all rooms",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/rooms")
		},
	}

	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show a single room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/rooms/" + args[0])
		},
	}

	var cmdShowPlugins = &cobra.Command{
		Use:   "plugins",
		Short: "Show the plugin catalog",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			get("/api/plugins")
		},
	}

	var roomName string
	var maxUsers int
	var cmdCreateRoom = &cobra.Command{
		Use:   "create-room",
		Short: "Create a room",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]interface{}{"name": roomName, "maxUsers": maxUsers})
			post("/api/rooms", body)
		},
	}
	cmdCreateRoom.Flags().StringVar(&roomName, "name", "", "room name")
	cmdCreateRoom.Flags().IntVar(&maxUsers, "max-users", 0, "room capacity")

	var setName string
	var setMaxUsers int
	var cmdSetRoom = &cobra.Command{
		Use:   "set-room [room id]",
		Short: "Update a room's settings",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]interface{}{"name": setName, "maxUsers": setMaxUsers})
			patch("/api/rooms/"+args[0], body)
		},
	}
	cmdSetRoom.Flags().StringVar(&setName, "name", "", "new room name")
	cmdSetRoom.Flags().IntVar(&setMaxUsers, "max-users", 0, "new room capacity")

	var rootCmd = &cobra.Command{Use: "quackamole-relay-admin"}
	rootCmd.PersistentFlags().StringVarP(&serverUrl, "server", "s", "http://localhost:12000", "base url of the relay server")
	rootCmd.PersistentFlags().StringVarP(&authToken, "secret", "t", "", "bearer secret for the HTTP API")
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowPlugins)
	rootCmd.AddCommand(cmdShow, cmdCreateRoom, cmdSetRoom)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func get(path string) {
	do(http.MethodGet, path, nil)
}

func post(path string, body []byte) {
	do(http.MethodPost, path, body)
}

func patch(path string, body []byte) {
	do(http.MethodPatch, path, body)
}

func do(method, path string, body []byte) {
	req, err := http.NewRequest(method, serverUrl+path, bytes.NewReader(body))
	if err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
	if resp.StatusCode >= 400 {
		fmt.Printf("%s\n", resp.Status)
		os.Exit(1)
	}
	out := &bytes.Buffer{}
	if err := json.Indent(out, raw, "", "  "); err != nil {
		fmt.Printf("%s\n", raw)
		return
	}
	fmt.Println(out.String())
}
