package config

import (
	"os"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// exampleConfig mirrors the reference deployment: a dioxus single-page app whose
// host-native prebuild writes the search index into docs/.
const exampleConfig = `# pagesdeploy configuration
pipeline:
  workflow: deploy
  branch: main
  cancel_in_progress: true

source:
  url: https://github.com/your-org/your-site.git
  project_dir: docsite
  auth:
    type: token
    token: ${GITHUB_TOKEN}

toolchain:
  tools:
    - name: dx
      install: ["cargo", "install", "dioxus-cli"]
  targets:
    - name: wasm32-unknown-unknown
      check: ["sh", "-c", "rustup target list --installed | grep -qx wasm32-unknown-unknown"]
      install: ["rustup", "target", "add", "wasm32-unknown-unknown"]

build:
  output_dir: docs
  release: true
  web_command: ["dx", "build", "--platform", "web"]
  host_command: ["cargo", "run"]
  search_index: searchindex.bin
  search_marker: search

deploy:
  branch: gh-pages
  folder: .
  clean: false
  author:
    name: pagesdeploy
    email: pagesdeploy@localhost

server:
  address: ":8080"
  webhook_path: /webhook
  webhook_secret: ${WEBHOOK_SECRET}

history:
  path: pagesdeploy.db

logging:
  level: info
  format: text
`

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
		return errors.FileSystemError("failed to write configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
