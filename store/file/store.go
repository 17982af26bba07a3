package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

const configFileName = "state.json"

// storeData is the on-disk shape of the configuration, all values as
// strings.
type storeData struct {
	ExplorerURL                  string `json:"explorer_url" mapstructure:"explorer_url"`
	Network                      string `json:"network" mapstructure:"network"`
	StopGap                      string `json:"stop_gap" mapstructure:"stop_gap"`
	ParallelRequests             string `json:"parallel_requests" mapstructure:"parallel_requests"`
	ExplorerTrackingPollInterval string `json:"explorer_tracking_poll_interval" mapstructure:"explorer_tracking_poll_interval"`
}

func (d storeData) isEmpty() bool {
	return d.ExplorerURL == "" && d.Network == ""
}

func (d storeData) decode() types.Config {
	stopGap, _ := strconv.Atoi(d.StopGap)
	parallelRequests, _ := strconv.Atoi(d.ParallelRequests)
	pollInterval, _ := strconv.Atoi(d.ExplorerTrackingPollInterval)
	return types.Config{
		ExplorerURL:                  d.ExplorerURL,
		Network:                      d.Network,
		StopGap:                      uint32(stopGap), // nolint
		ParallelRequests:             parallelRequests,
		ExplorerTrackingPollInterval: time.Duration(pollInterval) * time.Second,
	}
}

func encode(config types.Config) storeData {
	return storeData{
		ExplorerURL:      config.ExplorerURL,
		Network:          config.Network,
		StopGap:          strconv.Itoa(int(config.StopGap)),
		ParallelRequests: strconv.Itoa(config.ParallelRequests),
		ExplorerTrackingPollInterval: strconv.Itoa(
			int(config.ExplorerTrackingPollInterval / time.Second),
		),
	}
}

// configStore keeps the wallet configuration in a json file under datadir.
type configStore struct {
	datadir string
	lock    *sync.Mutex
}

func NewConfigStore(datadir string) (types.ConfigStore, error) {
	if err := os.MkdirAll(datadir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datadir %s: %s", datadir, err)
	}
	return &configStore{datadir: datadir, lock: &sync.Mutex{}}, nil
}

func (s *configStore) GetType() string {
	return types.FileStore
}

func (s *configStore) GetDatadir() string {
	return s.datadir
}

func (s *configStore) AddData(_ context.Context, data types.Config) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf, err := json.MarshalIndent(encode(data), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath(), buf, 0o600)
}

func (s *configStore) GetData(_ context.Context) (*types.Config, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	raw := make(map[string]interface{})
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("corrupted config file: %s", err)
	}
	var data storeData
	if err := mapstructure.Decode(raw, &data); err != nil {
		return nil, fmt.Errorf("corrupted config file: %s", err)
	}
	if data.isEmpty() {
		return nil, nil
	}

	config := data.decode()
	return &config, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.filePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *configStore) Close() {}

func (s *configStore) filePath() string {
	return filepath.Join(s.datadir, configFileName)
}
