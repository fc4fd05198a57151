package config

type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
	Scene  Scene
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	scene, err := LoadScene(serverCfg.ScenePath)
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Log:    logCfg,
		Scene:  scene,
	}, nil
}
