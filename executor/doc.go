/*
	Executor implementations are responsible for turning a resolved artifact
	into an execution result.

	There are two: `impl/process` runs the artifact as a child process in its
	own process group; `impl/plugin` loads the artifact's Go sources into a
	fresh interpreter inside this process.  `dispatch` picks one by mode.

	Imports: executors import from `api` and `executor/mixins` (never from
	the engine or batch packages that drive them).
*/
package executor
