package sandbox

// pythonBootstrap loads the entrypoint module and bridges the input and
// result files to a plain function call, so bundles ship bare functions with
// no wrapper of their own. Coroutine entrypoints ("async def run") are run
// to completion on a fresh event loop. A return value without "outputs" or
// "artifacts" keys is treated as the outputs map itself.
const pythonBootstrap = `import asyncio, importlib.util, json, os, sys

script, func_name = sys.argv[1], sys.argv[2]
spec = importlib.util.spec_from_file_location("skill_entrypoint", script)
module = importlib.util.module_from_spec(spec)
spec.loader.exec_module(module)
func = getattr(module, func_name)

with open(os.environ["OPEN_SKILLS_INPUT"], "r", encoding="utf-8") as fh:
    payload = json.load(fh)

if asyncio.iscoroutinefunction(func):
    result = asyncio.run(func(payload))
else:
    result = func(payload)
if result is None:
    result = {}
if not isinstance(result, dict):
    raise TypeError("entrypoint returned %s, expected dict" % type(result).__name__)

if "outputs" in result or "artifacts" in result:
    envelope = {
        "outputs": result.get("outputs", {}),
        "artifacts": result.get("artifacts", []),
    }
else:
    envelope = {"outputs": result, "artifacts": []}

with open(os.environ["OPEN_SKILLS_RESULT"], "w", encoding="utf-8") as fh:
    json.dump(envelope, fh)
`

// PythonArgv builds the argv for invoking a Python entrypoint function. The
// script path must be absolute because the process runs inside a private
// working directory.
func PythonArgv(interpreter, script, fn string) []string {
	return []string{interpreter, "-c", pythonBootstrap, script, fn}
}

// PythonEnv returns the extra environment variables Python invocations need:
// unbuffered output so log lines stream as they are printed, and no bytecode
// cache files next to shared bundle sources.
func PythonEnv() map[string]string {
	return map[string]string{
		"PYTHONUNBUFFERED":        "1",
		"PYTHONDONTWRITEBYTECODE": "1",
	}
}
