package systems

type SystemManagerConfig struct {
	Workers       int
	QueueSize     int
	Sampler       SamplerSystemConfig
	SamplerSource SamplerFactory
}

// SystemManager owns the systems shared by the game and the renderer and
// shuts them down in dependency order.
type SystemManager struct {
	JobSystem     *JobSystem
	SamplerSystem *SamplerSystem
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	js, err := NewJobSystem(config.Workers, config.QueueSize)
	if err != nil {
		return nil, err
	}
	samplerConfig := config.Sampler
	ss, err := NewSamplerSystem(&samplerConfig, config.SamplerSource)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:     js,
		SamplerSystem: ss,
	}, nil
}

/**
 * @brief Stops the producers first, then destroys the cached resources.
 */
func (sm *SystemManager) Shutdown() error {
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.SamplerSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
