package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/service/dialog"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Script    ScriptConfig
	Dialog    DialogConfig
	Countdown CountdownConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	seeds, err := parseSeeds(cfg.Dialog.Contacts)
	if err != nil {
		return nil, err
	}
	cfg.Dialog.seeds = seeds

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// ScriptConfig 描述对话脚本的来源。
type ScriptConfig struct {
	Path  string `env:"DIALOG_SCRIPT_PATH" envDefault:"data/dialog.csv"`
	Sheet string `env:"DIALOG_SCRIPT_SHEET"`
}

// DialogConfig 描述对话节奏与联系人。
type DialogConfig struct {
	DefaultDelay  time.Duration `env:"DIALOG_DEFAULT_DELAY"   envDefault:"1s"`
	SelfDelay     time.Duration `env:"DIALOG_SELF_DELAY"      envDefault:"500ms"`
	OptionDelay   time.Duration `env:"DIALOG_OPTION_DELAY"    envDefault:"1s"`
	SafePhaseNode int           `env:"DIALOG_SAFE_PHASE_NODE" envDefault:"12001"`
	StartNode     int           `env:"DIALOG_START_NODE"      envDefault:"0"`
	Contacts      []string      `env:"DIALOG_CONTACTS,required,notEmpty" envSeparator:","`

	seeds []chat.Seed
}

// Seeds returns the parsed contact list in configured order.
func (c DialogConfig) Seeds() []chat.Seed {
	return append([]chat.Seed(nil), c.seeds...)
}

// Sequencer converts the pacing settings for the interpreter.
func (c DialogConfig) Sequencer() dialog.Config {
	return dialog.Config{
		DefaultDelay:  c.DefaultDelay,
		SelfDelay:     c.SelfDelay,
		OptionDelay:   c.OptionDelay,
		SafePhaseNode: c.SafePhaseNode,
	}
}

// CountdownConfig 描述会话倒计时。
type CountdownConfig struct {
	Total time.Duration `env:"COUNTDOWN_TOTAL" envDefault:"600s"`
	Tick  time.Duration `env:"COUNTDOWN_TICK"  envDefault:"200ms"`
}

func (c Config) validate() error {
	if c.Dialog.DefaultDelay < 0 || c.Dialog.SelfDelay < 0 || c.Dialog.OptionDelay < 0 {
		return fmt.Errorf("dialog delays must not be negative")
	}
	if c.Countdown.Total <= 0 {
		return fmt.Errorf("invalid COUNTDOWN_TOTAL value: %s", c.Countdown.Total)
	}
	if c.Countdown.Tick <= 0 {
		return fmt.Errorf("invalid COUNTDOWN_TICK value: %s", c.Countdown.Tick)
	}
	return nil
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// parseSeeds 解析 "Name" 或 "Name:nodeId" 形式的联系人列表。
func parseSeeds(entries []string) ([]chat.Seed, error) {
	seeds := make([]chat.Seed, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, rawNode, hasNode := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid DIALOG_CONTACTS entry %q: empty name", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate contact %q in DIALOG_CONTACTS", name)
		}
		seen[name] = true

		seed := chat.Seed{Name: name}
		if hasNode {
			node, err := strconv.Atoi(strings.TrimSpace(rawNode))
			if err != nil || node < 0 {
				return nil, fmt.Errorf("invalid DIALOG_CONTACTS entry %q: bad node id", entry)
			}
			seed.EntryNodeID = node
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("DIALOG_CONTACTS must name at least one contact")
	}
	return seeds, nil
}
