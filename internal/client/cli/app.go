package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/staffkeeper/internal/client/client"
	"github.com/dmitrijs2005/staffkeeper/internal/client/config"
)

type App struct {
	config *config.Config
	client client.Client
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewStaffKeeperClient(c.ServerEndpointAddr, c.RequestTimeout, c.LoginTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	return &App{config: c, client: apiClient, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) error {
	defer a.client.Close()

	log.Println("Welcome to StaffKeeper CLI (type 'help' for commands)")
	if err := a.client.Ping(ctx); err != nil {
		log.Printf("server %s is not reachable yet: %v", a.config.ServerEndpointAddr, err)
	}

	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) isLoggedIn() bool {
	return a.client.Session() != nil
}

func (a *App) status() string {
	s := a.client.Session()
	if s == nil {
		return ""
	}
	return fmt.Sprintf("(%s@%s)", s.Login, s.Territory)
}
