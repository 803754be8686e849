package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// minimalDocument is the document fulfilled for the main-frame request,
// per spec: "minimal document, base URL = location, script execution
// enabled."
const minimalDocument = "<!doctype html><html><head></head><body></body></html>"

// setupScript installs the global/self alias, neutralizes canvas context
// probing, installs the SSR registration protocol, and patches timers so a
// callback that fires after __SSR_ACTIVE__ goes false is silently dropped
// with a one-time warning. This is the host/bundle contract and must not
// change shape once bundles depend on it.
const setupScript = `
(function(){
  window.global = window;
  window.self = window;
  try {
    delete HTMLCanvasElement.prototype.getContext;
  } catch (e) {
    HTMLCanvasElement.prototype.getContext = undefined;
  }

  window.__SSR_ACTIVE__ = true;
  window.__rrs = window.__rrs || {};
  window.__registerForSSR__ = function(callback) {
    window.__rrs.getRenderPromiseCallback = callback;
  };

  var __danglingWarned = false;
  function __ssrGate(fn) {
    return function() {
      if (!window.__SSR_ACTIVE__) {
        if (!__danglingWarned) {
          __danglingWarned = true;
          console.warn("Dangling timer(s) encountered");
        }
        return;
      }
      return fn.apply(this, arguments);
    };
  }

  var __origSetTimeout = window.setTimeout.bind(window);
  var __origSetInterval = window.setInterval.bind(window);
  var __origRAF = window.requestAnimationFrame ? window.requestAnimationFrame.bind(window) : null;

  window.setTimeout = function(cb, delay) {
    var extra = Array.prototype.slice.call(arguments, 2);
    return __origSetTimeout(__ssrGate(function() { cb.apply(null, extra); }), delay);
  };
  window.setInterval = function(cb, delay) {
    var extra = Array.prototype.slice.call(arguments, 2);
    return __origSetInterval(__ssrGate(function() { cb.apply(null, extra); }), delay);
  };
  if (__origRAF) {
    window.requestAnimationFrame = function(cb) {
      return __origRAF(__ssrGate(cb));
    };
  }
})();
`

// apolloScriptTemplate installs the three Apollo-like bindings: a client
// module stub, an in-memory cache object, and an HTTP link whose fetch
// relays through the bound Go function whose name fills the %s
// (apolloBindingName, via apolloSetupScript).
const apolloScriptTemplate = `
(function(){
  var __pending = {};
  var __nextID = 1;
  window.__apolloFetchResolve__ = function(id, body) {
    var p = __pending[id];
    if (!p) { return; }
    delete __pending[id];
    p.resolve(body);
  };
  window.__apolloFetchReject__ = function(id, message) {
    var p = __pending[id];
    if (!p) { return; }
    delete __pending[id];
    p.reject(new Error(message));
  };
  window.__APOLLO_CACHE__ = {};
  window.__APOLLO_LINK__ = {
    fetch: function(body) {
      return new Promise(function(resolve, reject) {
        var id = __nextID++;
        __pending[id] = {resolve: resolve, reject: reject};
        window.%s(JSON.stringify({id: id, body: body}));
      });
    }
  };
  window.__APOLLO_CLIENT__ = {
    link: window.__APOLLO_LINK__,
    cache: window.__APOLLO_CACHE__
  };
})();
`

const apolloBindingName = "__apolloFetchBinding__"

func apolloSetupScript() string {
	return fmt.Sprintf(apolloScriptTemplate, apolloBindingName)
}

// globalsScript copies every entry of globals into the sandbox's global
// namespace, except "location" (the sandbox's own location, set at
// construction, is authoritative).
func globalsScript(globals map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("(function(){\n")
	for key, value := range globals {
		if key == "location" {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("sandbox: encoding global %q: %w", key, err)
		}
		fmt.Fprintf(&b, "  window[%s] = %s;\n", mustJSON(key), string(encoded))
	}
	b.WriteString("})();\n")
	return b.String(), nil
}

func mustJSON(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
