package config

// virtualenvPrelude loads virtualenvwrapper the way the provisioned profile does.
const virtualenvPrelude = "source ${HOME}/.profile >/dev/null 2>&1; " +
	"source /usr/local/bin/virtualenvwrapper.sh"

// DefaultLaunchCommand starts the engine HTTP server inside the package virtualenv.
// The trailing exec keeps the shell from lingering as an extra tree level.
func DefaultLaunchCommand() []string {
	return []string{
		"bash", "-c",
		virtualenvPrelude + " && workon {{.Package}}_env && " +
			"exec marvin engine-httpserver --host {{.Host}} --port {{.Port}} --executor {{.Executor}}",
	}
}

// DefaultBuildCommand creates the package virtualenv and installs the engine into it.
func DefaultBuildCommand() []string {
	return []string{
		"bash", "-c",
		virtualenvPrelude + " && mkvirtualenv {{.Package}}_env && setvirtualenvproject && " +
			"workon {{.Package}}_env && make marvin",
	}
}

// DefaultProvisionSteps mirrors the classic engine host bootstrap.
func DefaultProvisionSteps() []Step {
	return []Step{
		{
			Name: "install_required_packages",
			Run: "sudo apt-get update -y && sudo apt-get install -y git wget python2.7-dev python-pip " +
				"ipython libffi-dev libssl-dev libxml2-dev libxslt1-dev libpng12-dev libfreetype6-dev " +
				"python-tk libsasl2-dev graphviz && sudo pip install --upgrade pip",
		},
		{
			Name: "install_virtualenvwrapper",
			Run: "sudo pip install virtualenvwrapper && " +
				"echo 'export WORKON_HOME=${HOME}/.virtualenvs' >> ${HOME}/.profile && " +
				"echo 'source /usr/local/bin/virtualenvwrapper.sh' >> ${HOME}/.profile",
		},
		{
			Name: "install_oracle_jdk",
			Run: "sudo add-apt-repository ppa:webupd8team/java -y && sudo apt-get -qq update && " +
				"echo debconf shared/accepted-oracle-license-v1-1 select true | sudo debconf-set-selections && " +
				"echo debconf shared/accepted-oracle-license-v1-1 seen true | sudo debconf-set-selections && " +
				"sudo apt-get install -y oracle-java8-installer",
		},
		{
			Name: "install_apache_spark",
			Run: "curl https://d3kbcqa49mib13.cloudfront.net/spark-2.1.1-bin-hadoop2.6.tgz " +
				"-o /tmp/spark-2.1.1-bin-hadoop2.6.tgz && " +
				"sudo tar -xf /tmp/spark-2.1.1-bin-hadoop2.6.tgz -C /opt/ && " +
				"sudo ln -sfn /opt/spark-2.1.1-bin-hadoop2.6 /opt/spark && " +
				"echo 'export SPARK_HOME=/opt/spark' >> ${HOME}/.profile",
		},
		{
			Name: "install_engine_executor",
			Run: "sudo mkdir -p /opt/marvin/engine-executor && cd /opt/marvin/engine-executor && " +
				"sudo wget -O engine-executor.jar " +
				"https://s3.amazonaws.com/marvin-engine-executor/marvin-engine-executor-assembly-0.0.1.jar",
		},
		{
			Name: "configure_environment",
			Run: "echo 'export MARVIN_HOME=${HOME}/marvin' >> ${HOME}/.profile && " +
				"echo 'export MARVIN_DATA_PATH=${MARVIN_HOME}/data' >> ${HOME}/.profile && " +
				"mkdir -p ${HOME}/marvin/data",
		},
	}
}
